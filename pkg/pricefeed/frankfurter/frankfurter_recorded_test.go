package frankfurter

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
)

// This test uses go-vcr to record/replay a real /latest call.
// It skips by default if cassette is absent and RECORD_CASSETTES != 1.
func TestFetchLatest_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "frankfurter_latest.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	assert.NotNil(t, r, "recorder should not be nil")
	defer func() { _ = r.Stop() }()

	httpClient := &http.Client{Transport: r}
	p := NewProvider(WithHTTPClient(httpClient))
	ctx := context.Background()

	quotes, err := p.FetchLatest(ctx, []string{"USDTRY", "EURUSD"})
	assert.NoError(t, err, "FetchLatest should not error")
	assert.NotEmpty(t, quotes, "quotes should not be empty")
	assert.Greater(t, quotes["USDTRY"].Price, 0.0, "USDTRY rate should be positive")
}
