package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/flashquiz/internal/models"
)

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("создаёт комнату и привязывает владельца", func(t *testing.T) {
		env := newTestEnv(t)
		room, err := env.svc.Create(ctx, CreateRoomRequest{OwnerID: 1, CollectionID: 7})
		require.NoError(t, err)

		assert.True(t, IsRoomCode(room.ID))
		assert.Equal(t, models.RoomWaiting, room.State)
		assert.Equal(t, 15, room.SecondsPerQuestion)
		assert.Equal(t, 100, room.PointsPerCorrect)
		assert.ElementsMatch(t, []int64{101, 102}, room.Order)
		require.NotNil(t, room.OwnerWaitMessage)

		code, err := env.store.UserRoom(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, room.ID, code)
		assert.Equal(t, 1, env.notifier.sentTo(1, "https://t.me/quizbot?start=online_"+room.ID))
	})

	t.Run("пустая коллекция", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Create(ctx, CreateRoomRequest{OwnerID: 1, CollectionID: 10})
		assert.ErrorIs(t, err, models.ErrEmptyCollection)
	})

	t.Run("неизвестная коллекция", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Create(ctx, CreateRoomRequest{OwnerID: 1, CollectionID: 404})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("владелец уже в комнате", func(t *testing.T) {
		env := newTestEnv(t)
		env.room(t, 7, 15)
		_, err := env.svc.Create(ctx, CreateRoomRequest{OwnerID: 1, CollectionID: 7})
		assert.ErrorIs(t, err, models.ErrAlreadyInRoom)
	})

	t.Run("некорректные настройки", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Create(ctx, CreateRoomRequest{OwnerID: 1, CollectionID: 7, SecondsPerQuestion: 1})
		assert.ErrorIs(t, err, models.ErrInvalidSettings)
	})

	t.Run("ошибка хранилища", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.setFailSaves(true)
		_, err := env.svc.Create(ctx, CreateRoomRequest{OwnerID: 1, CollectionID: 7})
		assert.ErrorIs(t, err, models.ErrPersistence)
		_, err = env.store.UserRoom(ctx, 1)
		assert.True(t, isNotFound(err))
	})
}

func TestJoinRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("игрок подключается, владелец видит счётчик", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15)

		room, err := env.svc.Join(ctx, code, 2, "alice")
		require.NoError(t, err)
		assert.Len(t, room.Players, 1)

		mapped, err := env.store.UserRoom(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, code, mapped)
		assert.Equal(t, 1, env.notifier.editsContaining("Подключено игроков: <b>1</b>"))
	})

	t.Run("повторное подключение", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		room, err := env.svc.Join(ctx, code, 2, "alice")
		assert.ErrorIs(t, err, models.ErrAlreadyJoined)
		require.NotNil(t, room)
		assert.Len(t, room.Players, 1)
	})

	t.Run("привязка не записалась, игрок не остаётся в комнате", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15)
		env.store.setFailMapping(2, true, false)

		_, err := env.svc.Join(ctx, code, 2, "alice")
		assert.ErrorIs(t, err, models.ErrPersistence)
		room, err := env.svc.Room(ctx, code)
		require.NoError(t, err)
		assert.False(t, room.HasPlayer(2))
		assert.False(t, env.store.saved(code).HasPlayer(2))

		env.store.setFailMapping(2, false, false)
		room, err = env.svc.Join(ctx, code, 2, "alice")
		require.NoError(t, err)
		assert.True(t, room.HasPlayer(2))
		active, err := env.svc.ActiveRoom(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, code, active)
	})

	t.Run("повторное подключение восстанавливает привязку", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		require.NoError(t, env.store.ClearUserRoom(ctx, 2))

		_, err := env.svc.Join(ctx, code, 2, "alice")
		assert.ErrorIs(t, err, models.ErrAlreadyJoined)
		mapped, err := env.store.UserRoom(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, code, mapped)

		_, err = env.svc.Start(ctx, code, 1)
		require.NoError(t, err)
		active, err := env.svc.ActiveRoom(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, code, active)
	})

	t.Run("актор остановился, не взяв команду", func(t *testing.T) {
		env := newTestEnv(t)
		snapshot := models.NewRoom("515151", 1, 7, "Столицы", []int64{101, 102}, 15, 100, env.clock.Now())
		require.NoError(t, env.store.SaveRoom(ctx, snapshot))

		stopped := newRoomActor(env.svc, snapshot.Clone())
		close(stopped.done)
		env.svc.mu.Lock()
		env.svc.actors["515151"] = stopped
		env.svc.mu.Unlock()

		room, err := env.svc.Join(ctx, "515151", 2, "alice")
		require.NoError(t, err)
		assert.Len(t, room.Players, 1)
		a, ok := env.svc.lookup("515151")
		require.True(t, ok)
		assert.NotSame(t, stopped, a)
	})

	t.Run("владелец не может играть", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15)
		_, err := env.svc.Join(ctx, code, 1, "owner")
		assert.ErrorIs(t, err, models.ErrOwnerCannotPlay)
	})

	t.Run("неизвестный код", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Join(ctx, "000000", 2, "alice")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = env.svc.Join(ctx, "abc", 2, "alice")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("игрок уже в другой комнате", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		other, err := env.svc.Create(ctx, CreateRoomRequest{OwnerID: 50, CollectionID: 7})
		require.NoError(t, err)
		require.NotEqual(t, code, other.ID)

		_, err = env.svc.Join(ctx, other.ID, 2, "alice")
		assert.ErrorIs(t, err, models.ErrAlreadyInRoom)
	})

	t.Run("лимит игроков", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15)
		for i := int64(0); i < models.MaxPlayersPerRoom; i++ {
			_, err := env.svc.Join(ctx, code, 100+i, fmt.Sprintf("p%d", i))
			require.NoError(t, err)
		}
		_, err := env.svc.Join(ctx, code, 999, "late")
		assert.ErrorIs(t, err, models.ErrCapacityExceeded)

		room, err := env.svc.Room(ctx, code)
		require.NoError(t, err)
		assert.Len(t, room.Players, models.MaxPlayersPerRoom)
	})

	t.Run("комната уже запущена", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		_, err := env.svc.Start(ctx, code, 1)
		require.NoError(t, err)
		_, err = env.svc.Join(ctx, code, 3, "bob")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("комната поднимается из снимка", func(t *testing.T) {
		env := newTestEnv(t)
		snapshot := models.NewRoom("123456", 1, 7, "Столицы", []int64{101, 102}, 15, 100, env.clock.Now())
		require.NoError(t, env.store.SaveRoom(ctx, snapshot))

		room, err := env.svc.Join(ctx, "123456", 2, "alice")
		require.NoError(t, err)
		assert.Len(t, room.Players, 1)
		assert.Len(t, env.store.saved("123456").Players, 1)
	})
}

func TestLeaveRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("игрок выходит", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)

		require.NoError(t, env.svc.Leave(ctx, code, 2))

		room, err := env.svc.Room(ctx, code)
		require.NoError(t, err)
		assert.Empty(t, room.Players)
		_, err = env.store.UserRoom(ctx, 2)
		assert.True(t, isNotFound(err))
		assert.Equal(t, 1, env.notifier.editsContaining("Подключено игроков: <b>0</b>"))
	})

	t.Run("владелец не выходит, а отменяет", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15)
		assert.ErrorIs(t, env.svc.Leave(ctx, code, 1), models.ErrOwnerCannotLeave)
	})

	t.Run("привязка не снялась", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		env.store.setFailMapping(2, false, true)

		assert.ErrorIs(t, env.svc.Leave(ctx, code, 2), models.ErrPersistence)
		room, err := env.svc.Room(ctx, code)
		require.NoError(t, err)
		assert.False(t, room.HasPlayer(2))

		// зависшая привязка не мешает создать свою комнату
		_, err = env.svc.ActiveRoom(ctx, 2)
		assert.True(t, isNotFound(err))
		_, err = env.svc.Create(ctx, CreateRoomRequest{OwnerID: 2, CollectionID: 7})
		require.NoError(t, err)
	})

	t.Run("комнаты уже нет", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.store.SetUserRoom(ctx, 2, "654321"))
		require.NoError(t, env.svc.Leave(ctx, "654321", 2))
		_, err := env.store.UserRoom(ctx, 2)
		assert.True(t, isNotFound(err))
	})
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	seconds, points := 30, 250

	t.Run("владелец меняет настройки", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15)
		room, err := env.svc.UpdateSettings(ctx, code, 1, &seconds, &points)
		require.NoError(t, err)
		assert.Equal(t, 30, room.SecondsPerQuestion)
		assert.Equal(t, 250, room.PointsPerCorrect)
		assert.Equal(t, 1, env.notifier.editsContaining("Баллы за верный ответ: <b>250</b>"))
	})

	t.Run("не владелец", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		_, err := env.svc.UpdateSettings(ctx, code, 2, &seconds, nil)
		assert.ErrorIs(t, err, models.ErrNotOwner)
	})

	t.Run("после старта нельзя", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		_, err := env.svc.Start(ctx, code, 1)
		require.NoError(t, err)
		_, err = env.svc.UpdateSettings(ctx, code, 1, &seconds, nil)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestStartRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("без игроков", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15)
		_, err := env.svc.Start(ctx, code, 1)
		assert.ErrorIs(t, err, models.ErrNoPlayers)
	})

	t.Run("не владелец", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		_, err := env.svc.Start(ctx, code, 2)
		assert.ErrorIs(t, err, models.ErrNotOwner)
	})

	t.Run("повторный старт", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.room(t, 7, 15, 2)
		room, err := env.svc.Start(ctx, code, 1)
		require.NoError(t, err)
		assert.Equal(t, models.RoomRunning, room.State)
		require.NotNil(t, room.StartedAt)

		_, err = env.svc.Start(ctx, code, 1)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

// slowStore задерживает чтение одной комнаты, пока тест не отпустит
type slowStore struct {
	*memStore
	code    string
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	if code == s.code {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.memStore.GetRoom(ctx, code)
}

func TestActorLoadDoesNotBlockRegistry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := &slowStore{memStore: env.store, code: "616161", entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewRoomService(store, env.content, env.notifier, env.clock, slog.New(slog.NewTextHandler(io.Discard, nil)), RoomServiceConfig{})
	t.Cleanup(svc.Shutdown)
	require.NoError(t, env.store.SaveRoom(ctx, models.NewRoom("616161", 1, 7, "Столицы", []int64{101}, 15, 100, env.clock.Now())))

	joined := make(chan error, 1)
	go func() {
		_, err := svc.Join(ctx, "616161", 2, "alice")
		joined <- err
	}()
	<-store.entered

	looked := make(chan struct{})
	go func() {
		svc.lookup("717171")
		close(looked)
	}()
	select {
	case <-looked:
	case <-time.After(time.Second):
		t.Fatal("registry locked while room snapshot is loading")
	}

	close(store.release)
	require.NoError(t, <-joined)
}

func TestRoomLoopFinishesAndDeletesRoom(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.room(t, 7, 30, 2)

	_, err := env.svc.Start(ctx, code, 1)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		env.step(30 * time.Second)
		env.step(time.Second)
	}
	env.waitReleased(t, code)

	assert.False(t, env.store.hasRoom(code))
	last := env.store.saved(code)
	assert.Equal(t, models.RoomFinished, last.State)
	assert.True(t, last.Done())
	require.NotNil(t, last.FinishedAt)

	assert.Equal(t, 2, env.notifier.sentTo(2, "❓ Вопрос"))
	assert.Equal(t, 2, env.notifier.editsContaining("✅ Правильный ответ"))
	assert.Equal(t, 1, env.notifier.sentTo(2, "Твоё место: <b>1</b>."))
	assert.Equal(t, 1, env.notifier.sentTo(1, "Итоговый рейтинг игроков"))
	assert.Equal(t, 1, env.notifier.sentTo(1, "Текущий рейтинг игроков"))
	assert.Equal(t, 1, env.notifier.editsContaining("Текущий рейтинг игроков"))

	for _, id := range []int64{1, 2} {
		_, err := env.store.UserRoom(ctx, id)
		assert.True(t, isNotFound(err))
	}
}

func TestRoomLoopScoresAnswers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.room(t, 8, 30, 2, 3)

	_, err := env.svc.Start(ctx, code, 1)
	require.NoError(t, err)
	env.clock.BlockUntil(1)

	verdict, err := env.svc.SubmitAnswer(ctx, code, 2, "  ПАРИЖ ")
	require.NoError(t, err)
	assert.True(t, verdict.Correct)

	verdict, err = env.svc.SubmitAnswer(ctx, code, 3, "Лондон")
	require.NoError(t, err)
	assert.False(t, verdict.Correct)

	_, err = env.svc.SubmitAnswer(ctx, code, 2, "Париж")
	assert.ErrorIs(t, err, models.ErrStale)

	_, err = env.svc.SubmitAnswer(ctx, code, 1, "Париж")
	assert.ErrorIs(t, err, models.ErrStale)

	env.clock.Advance(30 * time.Second)
	env.step(time.Second)
	env.waitReleased(t, code)

	last := env.store.saved(code)
	require.Equal(t, models.RoomFinished, last.State)
	alice, bob := last.Player(2), last.Player(3)
	require.NotNil(t, alice)
	require.NotNil(t, bob)
	assert.Equal(t, last.PointsPerCorrect, alice.Score-bob.Score)
	for _, p := range []*models.Player{alice, bob} {
		assert.GreaterOrEqual(t, p.TotalAnswerTime, 0.0)
		assert.LessOrEqual(t, p.TotalAnswerTime, 30.0)
	}
	assert.Equal(t, 1, env.notifier.sentTo(3, "Твоё место: <b>2</b>."))
}

func TestRoomLoopRejectsLateAnswers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.room(t, 7, 30, 2)

	_, err := env.svc.Start(ctx, code, 1)
	require.NoError(t, err)
	env.step(30 * time.Second)
	env.clock.BlockUntil(1)

	_, err = env.svc.SubmitAnswer(ctx, code, 2, "Париж")
	assert.ErrorIs(t, err, models.ErrStale)

	room, err := env.svc.Room(ctx, code)
	require.NoError(t, err)
	assert.Zero(t, room.Player(2).Score)
}

func TestRoomLoopCountsAnswerQueuedBeforeDeadline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := models.NewRoom("424242", 1, 8, "Столицы", []int64{101}, 30, 100, env.clock.Now())
	room.AddPlayer(2, "alice")
	require.NoError(t, room.Start(env.clock.Now()))
	require.NoError(t, env.store.SaveRoom(ctx, room))

	a := newRoomActor(env.svc, room)
	a.nextQuestion(ctx)
	require.Equal(t, phaseAsking, a.phase)

	// ответ уже в очереди, когда срабатывает дедлайн
	env.clock.Advance(29 * time.Second)
	r := newReplier()
	a.inbox <- answerCommand{replier: r, userID: 2, text: "Париж", at: env.clock.Now()}
	a.onTimer(ctx)

	res := <-r.reply
	require.NoError(t, res.err)
	assert.True(t, res.verdict.Correct)
	assert.Equal(t, 1, a.room.Index)
	assert.Equal(t, 100, env.store.saved("424242").Player(2).Score)
}

func TestRoomLoopSkipsLiveScoreboardWithoutPlayers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.room(t, 7, 30, 2)

	_, err := env.svc.Start(ctx, code, 1)
	require.NoError(t, err)
	env.clock.BlockUntil(1)
	require.NoError(t, env.svc.Leave(ctx, code, 2))

	env.clock.Advance(30 * time.Second)
	env.step(time.Second)
	env.waitReleased(t, code)

	assert.Equal(t, models.RoomFinished, env.store.saved(code).State)
	assert.Zero(t, env.notifier.sentTo(1, "Текущий рейтинг игроков"))
}

func TestRoomLoopCancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.room(t, 7, 30, 2, 3)

	_, err := env.svc.Start(ctx, code, 1)
	require.NoError(t, err)
	env.clock.BlockUntil(1)

	assert.ErrorIs(t, env.svc.Cancel(ctx, code, 2), models.ErrNotOwner)
	require.NoError(t, env.svc.Cancel(ctx, code, 1))
	env.waitReleased(t, code)

	for _, id := range []int64{1, 2, 3} {
		_, err := env.store.UserRoom(ctx, id)
		assert.True(t, isNotFound(err), "user %d still mapped", id)
	}
	assert.Equal(t, 1, env.notifier.sentTo(2, MsgOwnerCanceled))
	assert.Equal(t, 1, env.notifier.sentTo(3, MsgOwnerCanceled))

	env.clock.Advance(time.Minute)
	last := env.store.saved(code)
	assert.Equal(t, models.RoomCanceled, last.State)
	assert.Zero(t, env.notifier.editsContaining("✅ Правильный ответ"))
	assert.Zero(t, env.notifier.sentTo(2, "Игра завершена"))

	_, err = env.svc.Join(ctx, code, 4, "dave")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRoomLoopSkipsMissingCards(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.room(t, 9, 30, 2)

	_, err := env.svc.Start(ctx, code, 1)
	require.NoError(t, err)
	env.step(30 * time.Second)
	env.step(time.Second)
	env.waitReleased(t, code)

	assert.Equal(t, models.RoomFinished, env.store.saved(code).State)
	assert.Equal(t, 1, env.notifier.sentTo(2, "❓ Вопрос"))
}

func TestRoomLoopSurvivesDeliveryFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.room(t, 8, 30, 2, 3)
	env.notifier.mu.Lock()
	env.notifier.fail[3] = true
	env.notifier.mu.Unlock()

	_, err := env.svc.Start(ctx, code, 1)
	require.NoError(t, err)
	env.step(30 * time.Second)
	env.step(time.Second)
	env.waitReleased(t, code)

	assert.Equal(t, models.RoomFinished, env.store.saved(code).State)
	assert.Equal(t, 1, env.notifier.sentTo(2, "❓ Вопрос"))
	assert.Equal(t, 1, env.notifier.editsContaining("✅ Правильный ответ"))
	assert.False(t, env.store.hasRoom(code))
}

func TestRoomLoopAbortsOnPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.room(t, 7, 30, 2)

	_, err := env.svc.Start(ctx, code, 1)
	require.NoError(t, err)
	env.clock.BlockUntil(1)
	env.store.setFailSaves(true)
	env.clock.Advance(30 * time.Second)
	env.waitReleased(t, code)

	last := env.store.saved(code)
	assert.Equal(t, models.RoomRunning, last.State)
	assert.Equal(t, 0, last.Index)
	assert.True(t, env.store.hasRoom(code))
}

func TestRecoverResumesRunningRooms(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	room := models.NewRoom("777777", 1, 7, "Столицы", []int64{101, 102}, 20, 100, env.clock.Now())
	room.AddPlayer(2, "alice")
	require.NoError(t, room.Start(env.clock.Now()))
	room.Advance()
	require.NoError(t, env.store.SaveRoom(ctx, room))
	require.NoError(t, env.store.SaveRoom(ctx, models.NewRoom("888888", 5, 7, "", []int64{101}, 15, 100, env.clock.Now())))

	require.NoError(t, env.svc.Recover(ctx))
	env.step(20 * time.Second)
	env.step(time.Second)
	env.waitReleased(t, "777777")

	assert.Equal(t, models.RoomFinished, env.store.saved("777777").State)
	assert.Equal(t, 1, env.notifier.sentTo(2, "❓ Вопрос 2/2"))
	_, running := env.svc.lookup("888888")
	assert.False(t, running)
}
