package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/thereayou/flashquiz/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	inboxSize            = 64
	broadcastConcurrency = 8
)

type phase int

const (
	phaseIdle phase = iota
	phaseAsking
	phasePause
)

type result struct {
	room    *models.Room
	verdict AnswerVerdict
	err     error
}

type replier struct {
	reply chan result
}

func newReplier() replier {
	return replier{reply: make(chan result, 1)}
}

func (r replier) respond(res result) {
	r.reply <- res
}

// Команды актору комнаты
type (
	joinCommand struct {
		replier
		userID int64
		name   string
	}
	leaveCommand struct {
		replier
		userID int64
	}
	startCommand struct {
		replier
		userID int64
	}
	cancelCommand struct {
		replier
		userID int64
	}
	settingsCommand struct {
		replier
		userID  int64
		seconds *int
		points  *int
	}
	answerCommand struct {
		replier
		userID int64
		text   string
		at     time.Time
	}
	snapshotCommand struct {
		replier
	}
)

// roomActor: единственный владелец состояния комнаты.
// Все изменения проходят через inbox, Redis получает только снимки.
type roomActor struct {
	svc    *RoomService
	code   string
	room   *models.Room
	inbox  chan any
	done   chan struct{}
	logger *slog.Logger

	phase   phase
	timer   <-chan time.Time
	idle    clockwork.Timer
	card    *models.Card
	stopped bool
}

func newRoomActor(svc *RoomService, room *models.Room) *roomActor {
	return &roomActor{
		svc:    svc,
		code:   room.ID,
		room:   room,
		inbox:  make(chan any, inboxSize),
		done:   make(chan struct{}),
		logger: svc.logger.With("room", room.ID),
	}
}

func (a *roomActor) run(ctx context.Context) {
	defer close(a.done)
	defer a.svc.release(a)

	if d := a.svc.cfg.IdleTimeout; d > 0 {
		a.idle = a.svc.clock.NewTimer(d)
		defer a.idle.Stop()
	}

	if a.room.State == models.RoomRunning {
		a.logger.Info("resuming room loop", "index", a.room.Index)
		a.nextQuestion(ctx)
	}

	for !a.stopped {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.inbox:
			a.handle(ctx, msg)
			if a.idle != nil {
				a.idle.Reset(a.svc.cfg.IdleTimeout)
			}
		case <-a.timer:
			a.onTimer(ctx)
		case <-a.idleC():
			a.logger.Info("waiting room idle, releasing")
			a.stop()
		}
	}
}

// idleC срабатывает только для комнаты, где не идёт цикл вопросов
func (a *roomActor) idleC() <-chan time.Time {
	if a.idle == nil || a.room.State != models.RoomWaiting {
		return nil
	}
	return a.idle.Chan()
}

// ask отправляет команду и ждёт ответа; false: актор остановился, не взяв команду
func (a *roomActor) ask(ctx context.Context, cmd any, r replier) (result, bool) {
	select {
	case a.inbox <- cmd:
	case <-a.done:
		return result{err: models.ErrNotFound}, false
	case <-ctx.Done():
		return result{err: ctx.Err()}, true
	}

	select {
	case res := <-r.reply:
		return res, true
	case <-a.done:
		select {
		case res := <-r.reply:
			return res, true
		default:
			return result{err: models.ErrNotFound}, false
		}
	case <-ctx.Done():
		return result{err: ctx.Err()}, true
	}
}

func (a *roomActor) handle(ctx context.Context, msg any) {
	switch cmd := msg.(type) {
	case joinCommand:
		a.join(ctx, cmd)
	case leaveCommand:
		a.leave(ctx, cmd)
	case startCommand:
		a.start(ctx, cmd)
	case cancelCommand:
		a.cancel(ctx, cmd)
	case settingsCommand:
		a.updateSettings(ctx, cmd)
	case answerCommand:
		a.answer(ctx, cmd)
	case snapshotCommand:
		cmd.respond(result{room: a.room.Clone()})
	default:
		a.logger.Warn("unknown room command", "type", fmt.Sprintf("%T", msg))
	}
}

// commit сохраняет снимок и только потом принимает его как текущее состояние
func (a *roomActor) commit(ctx context.Context, next *models.Room) error {
	if err := a.svc.rooms.SaveRoom(ctx, next); err != nil {
		return err
	}
	a.room = next
	return nil
}

func (a *roomActor) stop() {
	a.stopped = true
	a.timer = nil
	a.phase = phaseIdle
}

func (a *roomActor) fail(err error) {
	a.logger.Error("room loop aborted", "error", err)
	a.stop()
}

func (a *roomActor) now() time.Time {
	return a.svc.clock.Now()
}

func (a *roomActor) join(ctx context.Context, cmd joinCommand) {
	switch {
	case a.room.State != models.RoomWaiting:
		cmd.respond(result{err: models.ErrInvalidTransition})
		return
	case a.room.IsOwner(cmd.userID):
		cmd.respond(result{err: models.ErrOwnerCannotPlay})
		return
	case a.room.HasPlayer(cmd.userID):
		// прошлая попытка могла не записать привязку
		if err := a.svc.rooms.SetUserRoom(ctx, cmd.userID, a.code); err != nil {
			cmd.respond(result{err: err})
			return
		}
		cmd.respond(result{room: a.room.Clone(), err: models.ErrAlreadyJoined})
		return
	}

	prev := a.room
	next := a.room.Clone()
	if !next.AddPlayer(cmd.userID, cmd.name) {
		cmd.respond(result{err: models.ErrCapacityExceeded})
		return
	}
	if err := a.commit(ctx, next); err != nil {
		cmd.respond(result{err: err})
		return
	}
	if err := a.svc.rooms.SetUserRoom(ctx, cmd.userID, a.code); err != nil {
		if rbErr := a.commit(ctx, prev); rbErr != nil {
			a.logger.Error("join not rolled back", "user_id", cmd.userID, "error", rbErr)
		}
		cmd.respond(result{err: err})
		return
	}
	a.logger.Info("player joined", "user_id", cmd.userID, "players", len(a.room.Players))
	a.refreshOwnerWaiting(ctx)
	cmd.respond(result{room: a.room.Clone()})
}

func (a *roomActor) leave(ctx context.Context, cmd leaveCommand) {
	if a.room.IsOwner(cmd.userID) {
		cmd.respond(result{err: models.ErrOwnerCannotLeave})
		return
	}
	if !a.room.HasPlayer(cmd.userID) {
		if err := a.clearMapping(ctx, cmd.userID); err != nil {
			cmd.respond(result{err: err})
			return
		}
		cmd.respond(result{room: a.room.Clone()})
		return
	}

	next := a.room.Clone()
	next.RemovePlayer(cmd.userID)
	if err := a.commit(ctx, next); err != nil {
		cmd.respond(result{err: err})
		return
	}

	a.logger.Info("player left", "user_id", cmd.userID, "players", len(a.room.Players))
	if a.room.State == models.RoomWaiting {
		a.refreshOwnerWaiting(ctx)
	}
	if err := a.clearMapping(ctx, cmd.userID); err != nil {
		cmd.respond(result{err: err})
		return
	}
	cmd.respond(result{room: a.room.Clone()})
}

func (a *roomActor) start(ctx context.Context, cmd startCommand) {
	if !a.room.IsOwner(cmd.userID) {
		cmd.respond(result{err: models.ErrNotOwner})
		return
	}
	next := a.room.Clone()
	if err := next.Start(a.now()); err != nil {
		cmd.respond(result{err: err})
		return
	}
	if err := a.commit(ctx, next); err != nil {
		cmd.respond(result{err: err})
		return
	}
	cmd.respond(result{room: a.room.Clone()})

	a.logger.Info("room started", "players", len(a.room.Players), "questions", a.room.TotalQuestions())
	a.editOwnerWaiting(ctx, models.Text(MsgGameStarted))
	a.nextQuestion(ctx)
}

func (a *roomActor) cancel(ctx context.Context, cmd cancelCommand) {
	if !a.room.IsOwner(cmd.userID) {
		cmd.respond(result{err: models.ErrNotOwner})
		return
	}
	next := a.room.Clone()
	if err := next.Cancel(a.now()); err != nil {
		cmd.respond(result{err: err})
		return
	}
	if err := a.commit(ctx, next); err != nil {
		cmd.respond(result{err: err})
		return
	}
	a.stop()

	a.logger.Info("room canceled", "players", len(a.room.Players))
	for _, p := range a.room.Players {
		if _, err := a.svc.notifier.Send(ctx, p.UserID, models.Text(MsgOwnerCanceled)); err != nil {
			a.logger.Warn("cancel notice not delivered", "user_id", p.UserID, "error", err)
		}
		a.dropMapping(ctx, p.UserID)
	}
	a.dropMapping(ctx, a.room.OwnerID)
	a.editOwnerWaiting(ctx, models.Text(MsgRoomClosed))
	cmd.respond(result{room: a.room.Clone()})
}

func (a *roomActor) updateSettings(ctx context.Context, cmd settingsCommand) {
	if !a.room.IsOwner(cmd.userID) {
		cmd.respond(result{err: models.ErrNotOwner})
		return
	}
	next := a.room.Clone()
	if err := next.UpdateSettings(cmd.seconds, cmd.points); err != nil {
		cmd.respond(result{err: err})
		return
	}
	if err := a.commit(ctx, next); err != nil {
		cmd.respond(result{err: err})
		return
	}
	a.refreshOwnerWaiting(ctx)
	cmd.respond(result{room: a.room.Clone()})
}

func (a *roomActor) answer(ctx context.Context, cmd answerCommand) {
	if a.phase != phaseAsking || a.card == nil {
		cmd.respond(result{err: models.ErrStale})
		return
	}
	next := a.room.Clone()
	verdict, err := ApplyAnswer(next, cmd.userID, cmd.text, a.card.Answer, cmd.at)
	if err != nil {
		cmd.respond(result{err: err})
		return
	}
	if err := a.commit(ctx, next); err != nil {
		cmd.respond(result{err: err})
		return
	}
	cmd.respond(result{verdict: verdict})
	a.logger.Debug("answer recorded", "user_id", cmd.userID, "correct", verdict.Correct, "elapsed", verdict.Elapsed)
}

func (a *roomActor) onTimer(ctx context.Context) {
	a.timer = nil
	switch a.phase {
	case phaseAsking:
		a.drainInbox(ctx)
		if a.stopped {
			return
		}
		a.reveal(ctx)
	case phasePause:
		a.nextQuestion(ctx)
	}
}

// drainInbox разбирает команды, пришедшие до срабатывания дедлайна:
// ответ, отправленный вовремя, должен попасть в вопрос до reveal
func (a *roomActor) drainInbox(ctx context.Context) {
	for n := len(a.inbox); n > 0 && !a.stopped; n-- {
		a.handle(ctx, <-a.inbox)
	}
}

// nextQuestion выбирает следующий вопрос, рассылает его и ставит таймер дедлайна
func (a *roomActor) nextQuestion(ctx context.Context) {
	for {
		if a.room.State != models.RoomRunning {
			a.stop()
			return
		}
		if a.room.Done() || len(a.room.EligiblePlayers()) == 0 {
			a.finish(ctx)
			return
		}

		cardID, _ := a.room.CurrentQuestionID()
		card, err := a.svc.content.Card(ctx, cardID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				a.logger.Warn("card lookup failed, skipping", "card_id", cardID, "error", err)
			}
			next := a.room.Clone()
			next.Advance()
			if err := a.commit(ctx, next); err != nil {
				a.fail(err)
				return
			}
			continue
		}

		next := a.room.Clone()
		next.BeginQuestion(a.now())
		if err := a.commit(ctx, next); err != nil {
			a.fail(err)
			return
		}
		a.card = card

		refs := a.broadcast(ctx, QuestionText(a.room, card.Question))

		next = a.room.Clone()
		next.LastQuestionMsgs = refs
		if err := a.commit(ctx, next); err != nil {
			a.fail(err)
			return
		}

		a.phase = phaseAsking
		a.timer = a.svc.clock.After(time.Duration(a.room.SecondsPerQuestion) * time.Second)
		return
	}
}

func (a *roomActor) reveal(ctx context.Context) {
	text := RevealText(a.room, a.card.Question, a.card.Answer)
	a.editAll(ctx, a.room.LastQuestionMsgs, text)

	next := a.room.Clone()
	next.Advance()
	next.LastQuestionMsgs = map[int64]models.MessageRef{}
	if err := a.commit(ctx, next); err != nil {
		a.fail(err)
		return
	}
	a.card = nil

	if err := a.sendLiveScoreboard(ctx); err != nil {
		a.fail(err)
		return
	}

	a.phase = phasePause
	a.timer = a.svc.clock.After(a.svc.cfg.RoundPause)
}

func (a *roomActor) finish(ctx context.Context) {
	next := a.room.Clone()
	if err := next.Finish(a.now()); err != nil {
		a.fail(err)
		return
	}
	if err := a.commit(ctx, next); err != nil {
		a.fail(err)
		return
	}
	a.stop()

	board := BuildScoreboard(a.room)
	a.logger.Info("room finished", "players", len(board))

	if _, err := a.svc.notifier.Send(ctx, a.room.OwnerID, models.Text(OwnerFinalText(a.room, board))); err != nil {
		a.logger.Warn("final scoreboard not delivered to owner", "error", err)
	}
	for _, p := range a.room.Players {
		if _, err := a.svc.notifier.Send(ctx, p.UserID, models.Text(PlayerFinalText(a.room, board, p.UserID))); err != nil {
			a.logger.Warn("final scoreboard not delivered", "user_id", p.UserID, "error", err)
		}
		a.dropMapping(ctx, p.UserID)
	}
	a.dropMapping(ctx, a.room.OwnerID)

	if err := a.svc.rooms.DeleteRoom(ctx, a.code); err != nil {
		a.logger.Warn("finished room left for ttl expiry", "error", err)
	}
}

// broadcast рассылает вопрос; ошибки доставки отдельным игрокам пропускаются
func (a *roomActor) broadcast(ctx context.Context, text string) map[int64]models.MessageRef {
	players := a.room.EligiblePlayers()
	refs := make(map[int64]models.MessageRef, len(players))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(broadcastConcurrency)
	for _, p := range players {
		p := p
		g.Go(func() error {
			ref, err := a.svc.notifier.Send(ctx, p.UserID, models.Text(text))
			if err != nil {
				a.logger.Warn("question not delivered", "user_id", p.UserID, "error", err)
				return nil
			}
			mu.Lock()
			refs[p.UserID] = ref
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return refs
}

func (a *roomActor) editAll(ctx context.Context, refs map[int64]models.MessageRef, text string) {
	var g errgroup.Group
	g.SetLimit(broadcastConcurrency)
	for userID, ref := range refs {
		if !a.room.HasPlayer(userID) {
			continue
		}
		userID, ref := userID, ref
		g.Go(func() error {
			if err := a.svc.notifier.Edit(ctx, ref, models.Text(text)); err != nil {
				a.logger.Warn("answer reveal not delivered", "user_id", userID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// sendLiveScoreboard правит сообщение с рейтингом у владельца, при неудаче шлёт новое.
// Пока игроков нет, владельцу ничего не шлём.
func (a *roomActor) sendLiveScoreboard(ctx context.Context) error {
	board := BuildScoreboard(a.room)
	if len(board) == 0 {
		return nil
	}
	n := models.Text(LiveScoreboardText(board))
	if ref := a.room.OwnerScoreMessage; ref != nil {
		err := a.svc.notifier.Edit(ctx, *ref, n)
		if err == nil {
			return nil
		}
		a.logger.Debug("live scoreboard edit failed, sending new", "error", err)
	}

	ref, err := a.svc.notifier.Send(ctx, a.room.OwnerID, n)
	if err != nil {
		a.logger.Warn("live scoreboard not delivered", "error", err)
		return nil
	}
	next := a.room.Clone()
	next.OwnerScoreMessage = &ref
	return a.commit(ctx, next)
}

func (a *roomActor) refreshOwnerWaiting(ctx context.Context) {
	a.editOwnerWaiting(ctx, models.Notification{
		Text:    WaitingRoomText(a.room, a.svc.DeepLink(a.code)),
		Buttons: OwnerRoomButtons(a.code),
	})
}

func (a *roomActor) editOwnerWaiting(ctx context.Context, n models.Notification) {
	ref := a.room.OwnerWaitMessage
	if ref == nil {
		return
	}
	if err := a.svc.notifier.Edit(ctx, *ref, n); err != nil {
		a.logger.Debug("owner room message not updated", "error", err)
	}
}

// clearMapping снимает привязку, только если она указывает на эту комнату
func (a *roomActor) clearMapping(ctx context.Context, userID int64) error {
	code, err := a.svc.rooms.UserRoom(ctx, userID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && code != a.code) {
		return nil
	}
	return a.svc.rooms.ClearUserRoom(ctx, userID)
}

// dropMapping для закрытия комнаты: зависшую привязку потом снимет ActiveRoom
func (a *roomActor) dropMapping(ctx context.Context, userID int64) {
	if err := a.clearMapping(ctx, userID); err != nil {
		a.logger.Warn("user room mapping not cleared", "user_id", userID, "error", err)
	}
}
