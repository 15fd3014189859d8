package api_test

import (
	"testing"
)

func dispenseBody(patientID string) map[string]interface{} {
	return map[string]interface{}{
		"patient_id": patientID,
		"items": []map[string]interface{}{
			{
				"name":       uniqueName("Paracetamol"),
				"strength":   "500mg",
				"form":       "tablet",
				"quantity":   4,
				"unit_price": 2.5,
			},
		},
	}
}

func TestDispenseLifecycle(t *testing.T) {
	patientID, _ := seedIDs(t)

	created := makeRequest("POST", "/dispenses", dispenseBody(patientID))
	if !created.IsSuccess() {
		t.Fatalf("create failed: %s", created.Message)
	}
	id := created.GetString("id")

	if created.GetString("payment_status") != "pending" {
		t.Errorf("expected a new bill to be pending, got %s", created.GetString("payment_status"))
	}
	if created.GetString("bill_number") != "" {
		t.Error("expected no bill number before the first payment")
	}

	paid := makeRequest("POST", "/dispenses/"+id+"/payments", map[string]interface{}{"amount": 4})
	if !paid.IsSuccess() {
		t.Fatalf("payment failed: %s", paid.Message)
	}
	if paid.GetString("payment_status") != "partial" {
		t.Errorf("expected partial after underpayment, got %s", paid.GetString("payment_status"))
	}
	billNumber := paid.GetString("bill_number")
	if billNumber == "" {
		t.Fatal("expected the first payment to assign a bill number")
	}

	settled := makeRequest("POST", "/dispenses/"+id+"/payments", map[string]interface{}{"amount": 6})
	if !settled.IsSuccess() {
		t.Fatalf("payment failed: %s", settled.Message)
	}
	if settled.GetString("payment_status") != "paid" {
		t.Errorf("expected paid after settling, got %s", settled.GetString("payment_status"))
	}
	if settled.GetString("bill_number") != billNumber {
		t.Error("bill number changed after assignment")
	}
}

func TestDispenseCancelIsOneShot(t *testing.T) {
	patientID, _ := seedIDs(t)

	created := makeRequest("POST", "/dispenses", dispenseBody(patientID))
	if !created.IsSuccess() {
		t.Fatalf("create failed: %s", created.Message)
	}
	id := created.GetString("id")

	cancelled := makeRequest("POST", "/dispenses/"+id+"/cancel", nil)
	if !cancelled.IsSuccess() {
		t.Fatalf("cancel failed: %s", cancelled.Message)
	}
	if cancelled.GetString("payment_status") != "cancelled" {
		t.Errorf("expected cancelled, got %s", cancelled.GetString("payment_status"))
	}

	again := makeRequest("POST", "/dispenses/"+id+"/cancel", nil)
	if again.IsSuccess() {
		t.Fatal("expected a second cancel to be rejected")
	}

	pay := makeRequest("POST", "/dispenses/"+id+"/payments", map[string]interface{}{"amount": 10})
	if pay.IsSuccess() {
		t.Fatal("expected payment on a cancelled bill to be rejected")
	}
}
