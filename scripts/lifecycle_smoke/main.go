// Command lifecycle_smoke drives one scan request through the full lifecycle
// against a running API instance: create as patient, claim and review as
// doctor, complete. It exits non-zero on the first unexpected response, which
// makes it usable as a deploy smoke check.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

type tokens struct {
	AccessToken string `json:"access_token"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type scanRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func main() {
	var (
		base       string
		patientCre string
		doctorCre  string
		timeout    time.Duration
	)
	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&patientCre, "patient", "patient@example.test:password", "patient email:password")
	flag.StringVar(&doctorCre, "doctor", "doctor@example.test:password", "doctor email:password")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}

	patientToken := login(client, base, patientCre)
	doctorToken := login(client, base, doctorCre)

	created := call(client, http.MethodPost, base+"/scan-requests", patientToken, map[string]any{
		"description": "smoke check: blurred vision",
		"priority":    "low",
	})
	log.Printf("created %s status=%s", created.ID, created.Status)
	expectStatus(created, "pending")

	assigned := call(client, http.MethodPost, base+"/scan-requests/"+created.ID+"/assign", doctorToken, nil)
	log.Printf("assigned %s status=%s", assigned.ID, assigned.Status)
	expectStatus(assigned, "assigned")

	reviewed := call(client, http.MethodPut, base+"/scan-requests/"+created.ID+"/note", doctorToken, map[string]any{
		"note": "smoke check note",
	})
	log.Printf("noted %s status=%s", reviewed.ID, reviewed.Status)
	expectStatus(reviewed, "reviewed")

	completed := call(client, http.MethodPost, base+"/scan-requests/"+created.ID+"/complete", doctorToken, nil)
	log.Printf("completed %s status=%s", completed.ID, completed.Status)
	expectStatus(completed, "completed")

	fmt.Println("lifecycle smoke check passed")
}

func login(client *http.Client, base, credentials string) string {
	email, password, ok := strings.Cut(credentials, ":")
	if !ok || email == "" || password == "" {
		log.Fatalf("invalid credentials %q, want email:password", credentials)
	}

	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := client.Post(base+"/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("login %s: %v", email, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		log.Fatalf("login %s: decode response: %v", email, err)
	}
	if env.Error != nil {
		log.Fatalf("login %s: %s %s", email, env.Error.Code, env.Error.Message)
	}
	var t tokens
	if err := json.Unmarshal(env.Data, &t); err != nil || t.AccessToken == "" {
		log.Fatalf("login %s: no access token in response", email)
	}
	return t.AccessToken
}

func call(client *http.Client, method, url, token string, body map[string]any) scanRequest {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		log.Fatalf("%s %s: decode response: %v", method, url, err)
	}
	if env.Error != nil {
		log.Fatalf("%s %s: %s %s", method, url, env.Error.Code, env.Error.Message)
	}

	var scan scanRequest
	if err := json.Unmarshal(env.Data, &scan); err != nil {
		log.Fatalf("%s %s: decode scan request: %v", method, url, err)
	}
	return scan
}

func expectStatus(scan scanRequest, want string) {
	if scan.Status != want {
		log.Fatalf("scan %s: expected status %s, got %s", scan.ID, want, scan.Status)
	}
}
