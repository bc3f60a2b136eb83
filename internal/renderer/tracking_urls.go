package renderer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// URLSigner builds HMAC-signed tracking URLs. The payload is pipe-delimited
// IDs, base64-encoded, followed by a truncated hex signature. The tracking
// boundary verifies the signature before recording an event.
type URLSigner struct {
	key     []byte
	baseURL string
}

// NewURLSigner creates a signer rooted at baseURL (no trailing slash).
func NewURLSigner(signingKey, baseURL string) *URLSigner {
	return &URLSigner{
		key:     []byte(signingKey),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// PixelURL returns the open-tracking pixel URL for one recipient.
func (s *URLSigner) PixelURL(campaignID, subscriberID string) string {
	data := fmt.Sprintf("%s|%s", campaignID, subscriberID)
	return fmt.Sprintf("%s/track/open/%s/%s", s.baseURL, encode(data), s.sign(data))
}

// ClickURL returns a tracked redirect URL for one link and recipient.
func (s *URLSigner) ClickURL(campaignID, subscriberID, linkID string) string {
	data := fmt.Sprintf("%s|%s|%s", campaignID, subscriberID, linkID)
	return fmt.Sprintf("%s/track/click/%s/%s", s.baseURL, encode(data), s.sign(data))
}

// UnsubscribeURL returns the one-click unsubscribe URL for one recipient.
func (s *URLSigner) UnsubscribeURL(campaignID, subscriberID string) string {
	data := fmt.Sprintf("%s|%s", campaignID, subscriberID)
	return fmt.Sprintf("%s/track/unsubscribe/%s/%s", s.baseURL, encode(data), s.sign(data))
}

// ViewURL returns the view-in-browser URL for one recipient.
func (s *URLSigner) ViewURL(campaignID, subscriberID string) string {
	data := fmt.Sprintf("%s|%s", campaignID, subscriberID)
	return fmt.Sprintf("%s/view/%s/%s", s.baseURL, encode(data), s.sign(data))
}

// Verify checks a signature produced by sign. Used by the tracking boundary.
func (s *URLSigner) Verify(encoded, signature string) (string, bool) {
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	data := string(decoded)
	if !hmac.Equal([]byte(s.sign(data)), []byte(signature)) {
		return "", false
	}
	return data, true
}

func (s *URLSigner) sign(data string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func encode(data string) string {
	return base64.URLEncoding.EncodeToString([]byte(data))
}
