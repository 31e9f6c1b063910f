package services

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jonboulle/clockwork"
	"github.com/thereayou/flashquiz/internal/models"
)

const codeAttempts = 20

// CodeAllocator выдаёт свободный 6-значный код комнаты
type CodeAllocator struct {
	rooms    RoomStore
	clock    clockwork.Clock
	intn     func(n int) int
	attempts int
}

func NewCodeAllocator(rooms RoomStore, clock clockwork.Clock) *CodeAllocator {
	return &CodeAllocator{
		rooms:    rooms,
		clock:    clock,
		intn:     rand.Intn,
		attempts: codeAttempts,
	}
}

func formatCode(n int) string {
	return fmt.Sprintf("%06d", n)
}

// Allocate пробует случайные коды, затем код от текущего времени.
// Код от времени тоже проверяется на занятость.
func (a *CodeAllocator) Allocate(ctx context.Context) (string, error) {
	for i := 0; i < a.attempts; i++ {
		code := formatCode(a.intn(codeSpace))
		taken, err := a.rooms.RoomExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}

	code := formatCode(int(a.clock.Now().Unix() % codeSpace))
	taken, err := a.rooms.RoomExists(ctx, code)
	if err != nil {
		return "", err
	}
	if taken {
		return "", models.ErrCodeSpaceExhausted
	}
	return code, nil
}
