package broker

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"go.uber.org/zap"
)

// Label names one live request. It doubles as a capability token handed
// back across the caller boundary, so it is drawn from a CSPRNG and must
// never be constructed outside newLabel
type Label string

const (
	// labels use a 62-symbol alphanumeric alphabet at a fixed length of 36,
	// making a live label computationally infeasible to guess
	labelAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	labelLength   = 36
)

func newLabel() (Label, error) {
	alphabetSize := big.NewInt(int64(len(labelAlphabet)))

	buf := make([]byte, labelLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("draw random label symbol: %w", err)
		}

		buf[i] = labelAlphabet[n.Int64()]
	}

	return Label(buf), nil
}

// requestRegistry owns the label -> request map. It is only ever mutated
// from the broker's run loop, so it carries no locking of its own
type requestRegistry struct {
	logger *zap.SugaredLogger

	requests map[Label]*deviceRequest
}

func newRequestRegistry(logger *zap.SugaredLogger) *requestRegistry {
	return &requestRegistry{
		logger:   logger.Named("registry"),
		requests: make(map[Label]*deviceRequest),
	}
}

// add generates a fresh unique label for the request and inserts it,
// re-rolling on the (vanishingly unlikely) collision against a live label
func (r *requestRegistry) add(request *deviceRequest) (Label, error) {
	var label Label
	for {
		generated, err := newLabel()
		if err != nil {
			return "", fmt.Errorf("generate request label: %w", err)
		}

		if _, taken := r.requests[generated]; !taken {
			label = generated
			break
		}

		r.logger.Warnw("Request label collision, re-rolling", "label", generated)
	}

	r.requests[label] = request

	r.logger.Debugw("Registered request", "label", label, "kind", request.kind)

	return label, nil
}

func (r *requestRegistry) get(label Label) (*deviceRequest, bool) {
	request, ok := r.requests[label]
	return request, ok
}

func (r *requestRegistry) remove(label Label) {
	if _, ok := r.requests[label]; !ok {
		return
	}

	delete(r.requests, label)
	r.logger.Debugw("Removed request", "label", label)
}

func (r *requestRegistry) count() int {
	return len(r.requests)
}

// each iterates all live requests. The callback must not add or remove
// registry entries; collect labels first if removal is needed
func (r *requestRegistry) each(f func(label Label, request *deviceRequest)) {
	for label, request := range r.requests {
		f(label, request)
	}
}

// hasEnumerationRequest reports whether any live EnumerateDevices request
// exists, optionally narrowed to one stream type
func (r *requestRegistry) hasEnumerationRequest(t StreamType) bool {
	for _, request := range r.requests {
		if request.kind != KindEnumerateDevices {
			continue
		}

		if t == StreamTypeNone || request.options.Requested(t) {
			return true
		}
	}

	return false
}
