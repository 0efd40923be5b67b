package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassUnknown},
		{"plain error", errors.New("peopledata: decode response"), ClassUnknown},
		{"transient", NewTransientError(errors.New("overloaded"), 503), ClassTransient},
		{"wrapped transient", fmt.Errorf("search person: %w", NewTransientError(errors.New("slow down"), 429)), ClassTransient},
		{"eris wrapped transient", eris.Wrap(NewTransientError(errors.New("bad gateway"), 502), "peopledata"), ClassTransient},
		{"fatal", NewFatalError(errors.New("unauthorized"), 401), ClassFatal},
		{"fatal wins over transient text", NewFatalError(errors.New("i/o timeout while parsing"), 0), ClassFatal},
		{"connection reset", fmt.Errorf("read tcp: %w", syscall.ECONNRESET), ClassTransient},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), ClassTransient},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, ClassTransient},
		{"tls text", errors.New("Get https://api: net/http: TLS handshake timeout"), ClassTransient},
		{"eof text", errors.New("Post https://api: unexpected EOF"), ClassTransient},
		{"unknown host", errors.New("dial tcp: lookup nope.invalid: no such host"), ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.want == ClassTransient, IsTransient(tt.err))
			assert.Equal(t, tt.want == ClassFatal, IsFatal(tt.err))
		})
	}
}

func TestClass_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "fatal", ClassFatal.String())
	assert.Equal(t, "unknown", ClassUnknown.String())
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422, 501} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	t.Run("rate limited is transient", func(t *testing.T) {
		t.Parallel()
		err := StatusError("peopledata", http.StatusTooManyRequests, "slow down")
		var te *TransientError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 429, te.StatusCode)
		assert.Equal(t, "peopledata: 429 Too Many Requests: slow down", err.Error())
	})

	t.Run("forbidden is fatal", func(t *testing.T) {
		t.Parallel()
		err := StatusError("peopledata", http.StatusForbidden, "")
		var fe *FatalError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, 403, fe.StatusCode)
		assert.False(t, IsTransient(err))
	})

	t.Run("long body is truncated", func(t *testing.T) {
		t.Parallel()
		body := make([]byte, 1000)
		for i := range body {
			body[i] = 'x'
		}
		err := StatusError("peopledata", 500, string(body))
		assert.Less(t, len(err.Error()), 320)
		assert.Contains(t, err.Error(), "...")
	})
}

func TestErrorTypes_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("root cause")
	assert.ErrorIs(t, NewTransientError(inner, 503), inner)
	assert.ErrorIs(t, NewFatalError(inner, 404), inner)
	assert.Equal(t, "root cause", NewFatalError(inner, 404).Error())
}
