package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alloctrack/internal/amqp"
	"alloctrack/internal/mail"
)

type mockSender struct{ mock.Mock }

func (m *mockSender) SendSummary(ctx context.Context, to []string) (mail.Receipt, error) {
	args := m.Called(ctx, to)
	return args.Get(0).(mail.Receipt), args.Error(1)
}

func factory(s SummarySender, released *int) SenderFactory {
	return func(context.Context) (SummarySender, func() error, error) {
		return s, func() error { *released++; return nil }, nil
	}
}

func event(family string, ts time.Time) *amqp.UploadCompletedMessage {
	return &amqp.UploadCompletedMessage{BatchID: "b-" + ts.Format("150405"), Family: family, Inserted: 3, Total: 4, Timestamp: ts}
}

func TestHandleUploadCompleted_SendsSummary(t *testing.T) {
	to := []string{"ops@example.com"}
	s := &mockSender{}
	s.On("SendSummary", mock.Anything, to).Return(mail.Receipt{Success: true, MessageID: "m1"}, nil).Once()

	var released int
	w := NewReportWorker(factory(s, &released), to, nil)
	require.NoError(t, w.HandleUploadCompleted(context.Background(), event("allocation", time.Now())))
	assert.Equal(t, 1, released)
	s.AssertExpectations(t)
}

func TestHandleUploadCompleted_SendFailureIsReturned(t *testing.T) {
	s := &mockSender{}
	s.On("SendSummary", mock.Anything, mock.Anything).Return(mail.Receipt{Error: "down"}, errors.New("down"))

	var released int
	w := NewReportWorker(factory(s, &released), []string{"a@example.com"}, nil)
	err := w.HandleUploadCompleted(context.Background(), event("nbl", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 1, released)
}

func TestHandleUploadCompleted_OpenFailure(t *testing.T) {
	w := NewReportWorker(func(context.Context) (SummarySender, func() error, error) {
		return nil, nil, errors.New("corrupt snapshot")
	}, []string{"a@example.com"}, nil)
	assert.Error(t, w.HandleUploadCompleted(context.Background(), event("nbl", time.Now())))
}

func TestHandleUploadCompleted_NoRecipients(t *testing.T) {
	s := &mockSender{}
	var released int
	w := NewReportWorker(factory(s, &released), nil, nil)
	require.NoError(t, w.HandleUploadCompleted(context.Background(), event("nbl", time.Now())))
	s.AssertNotCalled(t, "SendSummary", mock.Anything, mock.Anything)
	assert.Zero(t, released)
}

func TestHandleUploadCompleted_SkipsSupersededEvents(t *testing.T) {
	to := []string{"a@example.com"}
	s := &mockSender{}
	s.On("SendSummary", mock.Anything, to).Return(mail.Receipt{Success: true}, nil).Twice()

	var released int
	w := NewReportWorker(factory(s, &released), to, nil)
	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, w.HandleUploadCompleted(context.Background(), event("allocation", base)))
	require.NoError(t, w.HandleUploadCompleted(context.Background(), event("allocation", base.Add(-time.Minute))))
	// other families are tracked separately
	require.NoError(t, w.HandleUploadCompleted(context.Background(), event("nbl", base.Add(-time.Minute))))

	s.AssertNumberOfCalls(t, "SendSummary", 2)
}
