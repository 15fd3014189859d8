package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// APIResponse mirrors the server's response envelope.
type APIResponse struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func (r APIResponse) IsSuccess() bool {
	return r.Status == "success"
}

func (r APIResponse) GetString(key string) string {
	if v, ok := r.Data[key].(string); ok {
		return v
	}
	return ""
}

func (r APIResponse) GetFloat(key string) float64 {
	if v, ok := r.Data[key].(float64); ok {
		return v
	}
	return 0
}

func makeRequest(method, path string, body interface{}) APIResponse {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return APIResponse{Status: "error", Message: fmt.Sprintf("failed to marshal request body: %v", err)}
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+"/api/v1"+path, reqBody)
	if err != nil {
		return APIResponse{Status: "error", Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return APIResponse{Status: "error", Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	var response APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return APIResponse{Status: "error", Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return response
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// seedIDs returns the patient and doctor identities the tests book
// against. Patients and doctors are managed outside this API, so the
// tests expect pre-seeded rows.
func seedIDs(t *testing.T) (patientID, doctorID string) {
	t.Helper()

	patientID = os.Getenv("TEST_PATIENT_ID")
	doctorID = os.Getenv("TEST_DOCTOR_ID")
	if patientID == "" || doctorID == "" {
		t.Skip("TEST_PATIENT_ID and TEST_DOCTOR_ID must point at seeded rows")
	}
	return patientID, doctorID
}
