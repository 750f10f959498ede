package execution

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRequest_EnvList(t *testing.T) {
	req := Request{Env: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, []string{"A=1", "B=2"}, req.EnvList())
	assert.Nil(t, Request{}.EnvList())
}

func TestResult_Success(t *testing.T) {
	tests := []struct {
		name string
		res  *Result
		want bool
	}{
		{"nil", nil, false},
		{"zero exit", &Result{}, true},
		{"non-zero exit", &Result{ExitCode: 1}, false},
		{"timed out", &Result{TimedOut: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.Success())
		})
	}
}

func TestLaunchError(t *testing.T) {
	cause := errors.New("exec: \"nope\": executable file not found")
	err := error(&LaunchError{Command: "nope", Err: cause})

	assert.True(t, errors.Is(err, ErrLaunch))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsLaunchError(err))
	assert.Contains(t, err.Error(), `launch "nope"`)

	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, IsLaunchError(wrapped))
	assert.False(t, IsLaunchError(errors.New("plain")))
}
