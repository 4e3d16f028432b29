package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nao1215/imgfetch/internal/fetcher"
	"github.com/nao1215/imgfetch/internal/model"
	mock_pipeline "github.com/nao1215/imgfetch/internal/pipeline/mocks"
	"github.com/nao1215/imgfetch/internal/validator"
)

func TestOrchestratorWithMocks(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockFetcher := mock_pipeline.NewMockFetcher(ctrl)
	mockValidator := mock_pipeline.NewMockValidator(ctrl)
	mockRecorder := mock_pipeline.NewMockRecorder(ctrl)

	body := []byte("png bytes")
	okURL := "https://img.test/a/cat.png"
	httpURL := "https://img.test/gone.png"
	textURL := "https://img.test/readme.txt"

	mockFetcher.EXPECT().
		Fetch(gomock.Any(), okURL).
		Return(&fetcher.Response{StatusCode: 200, ContentType: "image/png", Body: body}, nil)
	mockFetcher.EXPECT().
		Fetch(gomock.Any(), httpURL).
		Return(nil, &fetcher.Error{Kind: model.ErrorHTTP, StatusCode: 404, URL: httpURL, Err: fetcher.ErrHTTPStatus})
	mockFetcher.EXPECT().
		Fetch(gomock.Any(), textURL).
		Return(&fetcher.Response{StatusCode: 200, ContentType: "text/plain", Body: []byte("hi")}, nil)

	mockValidator.EXPECT().
		Check("image/png", int64(len(body)), okURL).
		Return(validator.Verdict{Accepted: true})
	mockValidator.EXPECT().
		Check("text/plain", int64(2), textURL).
		Return(validator.Verdict{Reason: model.ReasonBadContentType, Detail: "text/plain"})

	// Outcomes reach the recorder in input order.
	gomock.InOrder(
		mockRecorder.EXPECT().Record(gomock.Any(), gomock.Cond(func(o model.Outcome) bool {
			return o.Index == 0 && o.Kind == model.OutcomeSaved
		})).Return(nil),
		mockRecorder.EXPECT().Record(gomock.Any(), gomock.Cond(func(o model.Outcome) bool {
			return o.Index == 1 && o.Kind == model.OutcomeFailed && o.StatusCode == 404
		})).Return(errors.New("database locked")),
		mockRecorder.EXPECT().Record(gomock.Any(), gomock.Cond(func(o model.Outcome) bool {
			return o.Index == 2 && o.Kind == model.OutcomeRejected
		})).Return(nil),
	)

	o, err := NewOrchestrator(t.TempDir(), OrchestratorConfig{
		Fetcher:   mockFetcher,
		Validator: mockValidator,
		Recorder:  mockRecorder,
	})
	require.NoError(t, err)

	results, err := o.Run(context.Background(), []string{okURL, httpURL, textURL})
	require.NoError(t, err, "recorder errors are not fatal")
	require.Len(t, results, 3)

	assert.Equal(t, model.OutcomeSaved, results[0].Kind)
	assert.Equal(t, model.ComputeFingerprint(body), results[0].Fingerprint)
	written, err := os.ReadFile(results[0].Path)
	require.NoError(t, err)
	assert.Equal(t, body, written)

	assert.Equal(t, model.ErrorHTTP, results[1].ErrorKind)
	assert.Equal(t, model.ReasonBadContentType, results[2].Reason)
	assert.Equal(t, 1, o.IndexLen())
}

func TestOrchestratorInvalidURLSkipsFetcher(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	// No expectations: any Fetch or Check call fails the test.
	mockFetcher := mock_pipeline.NewMockFetcher(ctrl)
	mockValidator := mock_pipeline.NewMockValidator(ctrl)

	o, err := NewOrchestrator(t.TempDir(), OrchestratorConfig{Fetcher: mockFetcher, Validator: mockValidator})
	require.NoError(t, err)

	results, err := o.Run(context.Background(), []string{"ftp://img.test/a.png", "not a url"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, model.ErrorInvalidURL, r.ErrorKind)
	}
}
