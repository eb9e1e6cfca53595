package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/user"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
	"github.com/sanosuguru/go-seat-booking-bot/internal/infrastructure/memory"
)

// 大きな列での座席トグルのコスト（座席一覧の再描画を含む）
func BenchmarkBookingService_ToggleSeat(b *testing.B) {
	ctx := context.Background()
	const seatsPerRow = 500

	svc := NewBookingService(&fakeTxManager{},
		newFakeInventory(map[string]map[int]int{"A": {1: seatsPerRow}}),
		newFakeUserRepository(), memory.NewSessionStore(),
		user.NewIdentityValidator(2), nil, nil)

	for _, action := range []Action{StartBooking{}, SelectSection{Section: "A"}, SelectRow{Section: "A", Row: 1}} {
		if _, err := svc.Handle(ctx, jane, action); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ref := venue.SeatRef{Section: "A", Row: 1, Seat: i%seatsPerRow + 1}
		if _, err := svc.Handle(ctx, jane, ToggleSeat{Seat: ref}); err != nil {
			b.Fatal(err)
		}
	}
}

// 多数の会話が同時に選択を進める場合のコスト
func BenchmarkBookingService_ParallelSelection(b *testing.B) {
	ctx := context.Background()
	svc := NewBookingService(&fakeTxManager{},
		newFakeInventory(map[string]map[int]int{"A": {1: 50, 2: 50}, "B": {1: 50}}),
		newFakeUserRepository(), memory.NewSessionStore(),
		user.NewIdentityValidator(2), nil, nil)

	var next int64
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id := atomic.AddInt64(&next, 1)
			actor := Actor{ChatID: id, ExternalID: id}
			for _, action := range []Action{
				StartBooking{},
				SelectSection{Section: "A"},
				SelectRow{Section: "A", Row: 2},
				ToggleSeat{Seat: venue.SeatRef{Section: "A", Row: 2, Seat: 7}},
				Abort{},
			} {
				if _, err := svc.Handle(ctx, actor, action); err != nil {
					panic(fmt.Sprintf("%s: %v", action.Name(), err))
				}
			}
		}
	})
}
