package signer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DeliveryResult is what a signed interaction delivery came back with. Body
// holds the parsed JSON response when the target returned JSON, otherwise
// the raw text.
type DeliveryResult struct {
	StatusCode int         `json:"statusCode"`
	Body       interface{} `json:"body"`
}

// Deliver serializes the interaction once, signs (timestamp || body) with
// the tenant's private key and POSTs the same bytes to webhookURL with the
// X-Signature-Ed25519 and X-Signature-Timestamp headers Discord would send.
func Deliver(client *http.Client, webhookURL, privateKeyHex string, interaction interface{}, now time.Time) (*DeliveryResult, error) {
	body, err := json.Marshal(interaction)
	if err != nil {
		return nil, fmt.Errorf("serialize interaction: %w", err)
	}

	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature, err := Sign(privateKeyHex, timestamp, string(body))
	if err != nil {
		return nil, fmt.Errorf("sign interaction: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Ed25519", signature)
	req.Header.Set("X-Signature-Timestamp", timestamp)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	result := &DeliveryResult{StatusCode: resp.StatusCode}
	var parsed interface{}
	if json.Unmarshal(respBody, &parsed) == nil {
		result.Body = parsed
	} else {
		result.Body = string(respBody)
	}
	return result, nil
}
