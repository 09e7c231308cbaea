package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports/mocks"
	"wallet-service/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testUpdateEvent() domain.UpdateEvent {
	return domain.UpdateEvent{
		CustomerID: 42,
		Amount:     decimal.NewFromInt(50),
		ActionType: domain.ActionDebit,
		Balance:    decimal.NewFromInt(150),
	}
}

func TestReliablePublisher_Publish_FirstAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockBrokerWriter(ctrl)
	pub := NewReliablePublisher(writer, 5, time.Millisecond, zerolog.Nop())

	writer.EXPECT().
		WriteMessage(gomock.Any(), TopicBalanceUpdate, gomock.Any(), gomock.Any()).
		Return(nil)

	require.NoError(t, pub.Publish(context.Background(), TopicBalanceUpdate, testUpdateEvent()))
}

func TestReliablePublisher_Publish_RecoversAfterTransientFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockBrokerWriter(ctrl)
	pub := NewReliablePublisher(writer, 5, time.Millisecond, zerolog.Nop())

	gomock.InOrder(
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicBalanceUpdate, gomock.Any(), gomock.Any()).
			Return(errors.New("broker unavailable")).
			Times(2),
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicBalanceUpdate, gomock.Any(), gomock.Any()).
			Return(nil),
	)

	require.NoError(t, pub.Publish(context.Background(), TopicBalanceUpdate, testUpdateEvent()))
}

func TestReliablePublisher_Publish_ExhaustionDeadLetters(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockBrokerWriter(ctrl)
	pub := NewReliablePublisher(writer, 5, time.Millisecond, zerolog.Nop())

	var deadLettered [][]byte
	gomock.InOrder(
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicBalanceUpdate, gomock.Any(), gomock.Any()).
			Return(errors.New("broker unavailable")).
			Times(5),
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicDeadLetter, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ []byte, value []byte) error {
				deadLettered = append(deadLettered, value)
				return nil
			}),
	)

	// Exhaustion is not an error for the caller.
	require.NoError(t, pub.Publish(context.Background(), TopicBalanceUpdate, testUpdateEvent()))
	require.Len(t, deadLettered, 1)
	assert.Contains(t, string(deadLettered[0]), `"actionType":"DEBIT"`)
}

func TestReliablePublisher_Publish_DeadLetterFailureSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockBrokerWriter(ctrl)
	pub := NewReliablePublisher(writer, 2, time.Millisecond, zerolog.Nop())

	gomock.InOrder(
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicBalanceUpdate, gomock.Any(), gomock.Any()).
			Return(errors.New("broker unavailable")).
			Times(2),
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicDeadLetter, gomock.Any(), gomock.Any()).
			Return(errors.New("broker unavailable")),
	)

	require.NoError(t, pub.Publish(context.Background(), TopicBalanceUpdate, testUpdateEvent()))
}

func TestReliablePublisher_Publish_SurvivesCallerCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockBrokerWriter(ctrl)
	pub := NewReliablePublisher(writer, 5, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())

	// The writer honors its context. One transient failure that also tears
	// down the caller's context; the retry must still reach the broker.
	gomock.InOrder(
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicBalanceUpdate, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _, _ []byte) error {
				cancel()
				return errors.New("broker unavailable")
			}),
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicBalanceUpdate, gomock.Any(), gomock.Any()).
			DoAndReturn(func(writeCtx context.Context, _ string, _, _ []byte) error {
				if err := writeCtx.Err(); err != nil {
					return err
				}
				return nil
			}),
	)

	require.NoError(t, pub.Publish(ctx, TopicBalanceUpdate, testUpdateEvent()))
}

func TestReliablePublisher_Publish_DeadLetterSurvivesCallerCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockBrokerWriter(ctrl)
	pub := NewReliablePublisher(writer, 2, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var deadLettered int
	gomock.InOrder(
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicBalanceUpdate, gomock.Any(), gomock.Any()).
			Return(errors.New("broker unavailable")).
			Times(2),
		writer.EXPECT().
			WriteMessage(gomock.Any(), TopicDeadLetter, gomock.Any(), gomock.Any()).
			DoAndReturn(func(writeCtx context.Context, _ string, _, _ []byte) error {
				if err := writeCtx.Err(); err != nil {
					return err
				}
				deadLettered++
				return nil
			}),
	)

	require.NoError(t, pub.Publish(ctx, TopicBalanceUpdate, testUpdateEvent()))
	assert.Equal(t, 1, deadLettered)
}

func TestReliablePublisher_Publish_SerializationFailsFast(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockBrokerWriter(ctrl)
	pub := NewReliablePublisher(writer, 5, time.Millisecond, zerolog.Nop())

	// No WriteMessage expectation: an unserializable payload never reaches
	// the broker.
	err := pub.Publish(context.Background(), TopicBalanceUpdate, make(chan int))

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "EVT_001", appErr.Code)
}
