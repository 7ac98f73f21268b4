package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/application/metric"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

// SignalingUsecase - адаптер сигнализации поверх хранилища документов комнаты
type SignalingUsecase interface {
	// PublishPresence возвращает сохраненную запись участника с joinedAt хранилища
	PublishPresence(ctx context.Context, roomID string, p models.Participant) (models.Participant, error)
	RetractPresence(ctx context.Context, roomID, participantID string) error
	SubscribeMembership(ctx context.Context, roomID string, onChange func(models.UserChange)) (domain.Unsubscribe, error)

	// SendSignal не возвращает ошибку: потеря одного сообщения ломает только одно согласование
	SendSignal(ctx context.Context, roomID string, msg models.SignalMessage)
	SubscribeSignals(ctx context.Context, roomID, recipientID string, onMessage func(models.SignalMessage)) (domain.Unsubscribe, error)
	AckSignal(ctx context.Context, roomID, signalID string)
}

type signalingUsecase struct {
	store domain.DocumentStore
}

func NewSignalingUsecase(store domain.DocumentStore) SignalingUsecase {
	return &signalingUsecase{store: store}
}

func (s *signalingUsecase) PublishPresence(ctx context.Context, roomID string, p models.Participant) (models.Participant, error) {
	stored, err := s.store.UpsertUser(ctx, roomID, p)
	if err != nil {
		return models.Participant{}, domain.NewError("publish presence", err)
	}

	slog.Info(
		"presence published",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.ParticipantID, stored.ID),
		slog.String(constant.ScreenName, stored.ScreenName),
	)

	return stored, nil
}

func (s *signalingUsecase) RetractPresence(ctx context.Context, roomID, participantID string) error {
	if err := s.store.DeleteUser(ctx, roomID, participantID); err != nil {
		return domain.NewError("retract presence", err)
	}

	return nil
}

func (s *signalingUsecase) SubscribeMembership(
	ctx context.Context,
	roomID string,
	onChange func(models.UserChange),
) (domain.Unsubscribe, error) {
	unsubscribe, err := s.store.WatchUsers(ctx, roomID, onChange)
	if err != nil {
		return nil, domain.NewError("subscribe membership", err)
	}

	return unsubscribe, nil
}

func (s *signalingUsecase) SendSignal(ctx context.Context, roomID string, msg models.SignalMessage) {
	if err := msg.Validate(); err != nil {
		slog.Error("invalid outgoing signal", slog.Any(constant.Error, err))
		metric.RecordSignalSendFailure()

		return
	}

	signalID, err := s.store.AddSignal(ctx, roomID, msg)
	if err != nil {
		slog.Error(
			"send signal",
			slog.Any(constant.Error, err),
			slog.String(constant.SignalType, string(msg.Type)),
			slog.String(constant.RemoteID, msg.To),
		)
		metric.RecordSignalSendFailure()

		return
	}

	metric.RecordSignalSent(string(msg.Type))

	slog.Debug(
		"signal sent",
		slog.String(constant.SignalID, signalID),
		slog.String(constant.SignalType, string(msg.Type)),
		slog.String(constant.RemoteID, msg.To),
	)
}

func (s *signalingUsecase) SubscribeSignals(
	ctx context.Context,
	roomID, recipientID string,
	onMessage func(models.SignalMessage),
) (domain.Unsubscribe, error) {
	var (
		seen = make(map[string]struct{})
		mu   sync.Mutex
	)

	unsubscribe, err := s.store.WatchSignals(ctx, roomID, recipientID, func(msg models.SignalMessage) {
		if msg.To != recipientID {
			return
		}

		// хранилище может доставить документ повторно
		mu.Lock()
		_, duplicate := seen[msg.ID]
		seen[msg.ID] = struct{}{}
		mu.Unlock()

		if duplicate {
			return
		}

		if err := msg.Validate(); err != nil {
			slog.Warn(
				"drop invalid signal",
				slog.Any(constant.Error, fmt.Errorf("%w: %w", domain.ErrInvalidSignal, err)),
				slog.String(constant.SignalID, msg.ID),
			)
			s.AckSignal(ctx, roomID, msg.ID)

			return
		}

		metric.RecordSignalReceived(string(msg.Type))

		onMessage(msg)
	})
	if err != nil {
		return nil, domain.NewError("subscribe signals", err)
	}

	return unsubscribe, nil
}

func (s *signalingUsecase) AckSignal(ctx context.Context, roomID, signalID string) {
	if err := s.store.DeleteSignal(ctx, roomID, signalID); err != nil {
		slog.Warn(
			"delete consumed signal",
			slog.Any(constant.Error, err),
			slog.String(constant.SignalID, signalID),
		)
	}
}
