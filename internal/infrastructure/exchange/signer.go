package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vitos/quicky/internal/domain"
)

const (
	headerAPIKey     = "X-BAPI-API-KEY"
	headerTimestamp  = "X-BAPI-TIMESTAMP"
	headerSign       = "X-BAPI-SIGN"
	headerRecvWindow = "X-BAPI-RECV-WINDOW"
)

// Sign builds the v5 envelope:
// hex(HMAC_SHA256(secret, timestamp + apiKey + recvWindow + payload)).
func Sign(creds domain.Credentials, recvWindow, timestamp int64, payload string) domain.SignedRequest {
	toSign := strconv.FormatInt(timestamp, 10) + creds.APIKey + strconv.FormatInt(recvWindow, 10) + payload
	h := hmac.New(sha256.New, []byte(creds.APISecret))
	h.Write([]byte(toSign))
	return domain.SignedRequest{
		APIKey:     creds.APIKey,
		Timestamp:  timestamp,
		RecvWindow: recvWindow,
		Payload:    payload,
		Signature:  hex.EncodeToString(h.Sum(nil)),
	}
}

// CanonicalQuery encodes GET parameters sorted by key, the form the
// signature is computed over.
func CanonicalQuery(params url.Values) string {
	return params.Encode()
}

func applySignature(h http.Header, sr domain.SignedRequest) {
	h.Set(headerAPIKey, sr.APIKey)
	h.Set(headerTimestamp, strconv.FormatInt(sr.Timestamp, 10))
	h.Set(headerSign, sr.Signature)
	h.Set(headerRecvWindow, strconv.FormatInt(sr.RecvWindow, 10))
}
