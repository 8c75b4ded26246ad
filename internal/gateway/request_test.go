package gateway

import (
	"net/url"
	"strings"
	"testing"
)

func testMerchant() Merchant {
	return Merchant{
		MerchantID:  "10000100",
		MerchantKey: "46f0cd694581a",
		ReturnURL:   "https://kleenpride.test/return",
		CancelURL:   "https://kleenpride.test/cancel",
		NotifyURL:   "https://kleenpride.test/notify",
		ProcessURL:  "https://sandbox.gateway.test/eng/process",
	}
}

func TestPaymentRequestParams(t *testing.T) {
	p := PaymentRequest{
		Merchant:     testMerchant(),
		Email:        "thandi@example.com",
		AmountMinor:  45050,
		ItemName:     "Pride Wash",
		BookingID:    "b1",
		PaymentToken: "tok_abc",
	}.Params()

	wantKeys := []string{
		"merchant_id", "merchant_key", "return_url", "cancel_url", "notify_url",
		"name_first", "name_last", "email_address", "amount", "item_name", "item_description",
		"custom_str1", "custom_str2", "email_confirmation", "confirmation_address",
	}
	if len(p) != len(wantKeys) {
		t.Errorf("got %d params, want %d", len(p), len(wantKeys))
	}
	for _, k := range wantKeys {
		if _, ok := p[k]; !ok {
			t.Errorf("missing param %s", k)
		}
	}
	if _, ok := p[SignatureField]; ok {
		t.Error("signature must not be part of the canonical set")
	}

	checks := map[string]string{
		"amount":             "450.50",
		"custom_str1":        "b1",
		"custom_str2":        "tok_abc",
		"email_confirmation": "0",
	}
	for k, want := range checks {
		if p[k] != want {
			t.Errorf("%s = %q, want %q", k, p[k], want)
		}
	}
}

func TestPaymentRequestEmailConfirmation(t *testing.T) {
	m := testMerchant()
	m.EmailConfirmation = true
	p := PaymentRequest{Merchant: m, Email: "a@b.c"}.Params()
	if p["email_confirmation"] != "1" || p["confirmation_address"] != "a@b.c" {
		t.Errorf("confirmation = %q / %q", p["email_confirmation"], p["confirmation_address"])
	}
}

func TestTokenizationRequestParams(t *testing.T) {
	p := TokenizationRequest{Merchant: testMerchant(), Email: "a@b.c", Alias: "My Visa"}.Params()

	if len(p) != 6 {
		t.Errorf("got %d params, want 6", len(p))
	}
	if p["amount"] != TokenizationAmount || p["item_name"] != TokenizationItemName {
		t.Errorf("amount/item = %q / %q", p["amount"], p["item_name"])
	}
	want := "https://kleenpride.test/return?tokenize=true&alias=My+Visa"
	if p["return_url"] != want {
		t.Errorf("return_url = %q, want %q", p["return_url"], want)
	}
}

func TestRedirectURL(t *testing.T) {
	params := map[string]string{"item_name": "Pride Wash", "amount": "450.00"}
	got := RedirectURL("https://gw.test/process", params, "abc123")

	want := "https://gw.test/process?amount=450.00&item_name=Pride+Wash&signature=abc123"
	if got != want {
		t.Errorf("RedirectURL() = %q, want %q", got, want)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Query().Get("item_name") != "Pride Wash" {
		t.Errorf("item_name round trip = %q", u.Query().Get("item_name"))
	}
	if !strings.HasSuffix(got, "&signature=abc123") {
		t.Error("signature must be the last parameter")
	}
}
