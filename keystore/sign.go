package keystore

import (
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/go-fed/httpsig"
)

// SignRequest signs req with privKey under keyID, covering request target,
// host and date, plus the body digest when a body is present. This is the
// same signature form we demand of peers on our inbox.
func SignRequest(privKey *rsa.PrivateKey, keyID string, req *http.Request, body []byte) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	// net/http carries the host in req.Host, not the header map, but
	// httpsig builds the signature string from the header map alone.
	if req.Header.Get("Host") == "" {
		host := req.Host
		if host == "" {
			host = req.URL.Host
		}
		req.Header.Set("Host", host)
	}

	headers := []string{httpsig.RequestTarget, "host", "date"}
	if body != nil {
		headers = append(headers, "digest")
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		headers,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return err
	}
	return signer.SignRequest(privKey, keyID, req, body)
}
