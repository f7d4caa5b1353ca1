package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavigationSignal_PaymentCompleted(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "stripe checkout success", url: "https://checkout.stripe.com/c/pay/success?session_id=cs_123", want: true},
		{name: "stripe success", url: "https://stripe.com/payments/success", want: true},
		{name: "buy.stripe success", url: "https://buy.stripe.com/abc/success", want: true},
		{name: "product site success", url: "https://tabmangment.com/payment-success", want: true},
		{name: "vercel preview success", url: "https://tabmangment-git-main.vercel.app/success", want: true},
		{name: "case insensitive", url: "https://CHECKOUT.STRIPE.COM/SUCCESS", want: true},
		{name: "stripe without success", url: "https://checkout.stripe.com/c/pay/cs_123", want: false},
		{name: "success on unrelated host", url: "https://example.com/success", want: false},
		{name: "pricing page", url: "https://tabmangment.com/pricing", want: false},
		{name: "empty url", url: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := NavigationSignal{URL: tt.url, TabID: 7}
			assert.Equal(t, tt.want, sig.PaymentCompleted())
		})
	}
}

func TestNavigationSignal_SessionID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "session id present",
			url:  "https://checkout.stripe.com/success?session_id=cs_test_a1B2&other=x",
			want: "cs_test_a1B2",
		},
		{
			name: "session id last param",
			url:  "https://tabmangment.com/success?foo=bar&session_id=cs_123",
			want: "cs_123",
		},
		{
			name: "no session id",
			url:  "https://tabmangment.com/success",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := NavigationSignal{URL: tt.url}
			assert.Equal(t, tt.want, sig.SessionID())
		})
	}
}

func TestNavigationSignal_Tab(t *testing.T) {
	id, ok := NavigationSignal{URL: "x", TabID: 42}.Tab()
	assert.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = NavigationSignal{URL: "x"}.Tab()
	assert.False(t, ok)
}

func TestFlagSignal(t *testing.T) {
	sig := FlagSignal{}
	assert.True(t, sig.PaymentCompleted())

	_, ok := sig.Tab()
	assert.False(t, ok)
}
