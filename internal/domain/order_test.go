package domain

import "testing"

func TestOrderStatus_Terminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{StatusOpen, false},
		{StatusUnknown, false},
		{StatusFilled, true},
		{StatusCanceled, true},
		{StatusRejected, true},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", ErrNetwork, true},
		{"rate limited", ErrRateLimited, true},
		{"rejected", ErrOrderRejected, false},
		{"insufficient balance", ErrInsufficientBalance, false},
		{"data unavailable", ErrDataUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
