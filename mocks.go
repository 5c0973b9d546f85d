/*
Copyright 2025 Payhold Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payhold

import (
	"context"

	"github.com/payhold-io/payhold/gateway"
)

// MockGateway is a configurable gateway.Client stand-in.
type MockGateway struct {
	ChargeFunc   func(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
	TransferFunc func(ctx context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error)
	VerifyFunc   func(payload []byte, signature string) bool
}

func (m *MockGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return &gateway.ChargeResult{Reference: req.Reference}, nil
}

func (m *MockGateway) Transfer(ctx context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error) {
	if m.TransferFunc != nil {
		return m.TransferFunc(ctx, req)
	}
	return &gateway.TransferResult{TransferCode: "TRF_mock", Status: "pending", Reference: req.Reference}, nil
}

func (m *MockGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(payload, signature)
	}
	return true
}

// MockBookingService is a configurable BookingService stand-in.
type MockBookingService struct {
	GetBookingFunc func(ctx context.Context, bookingID string) (*Booking, error)
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID string) (*Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID)
	}
	return &Booking{
		BookingID:     bookingID,
		ClientEmail:   "client@example.com",
		ProviderID:    "prv_mock",
		RecipientCode: "RCP_mock",
		Status:        "CONFIRMED",
	}, nil
}

// MockCompletionService is a configurable CompletionService stand-in.
type MockCompletionService struct {
	IsJobCompletedFunc func(ctx context.Context, bookingID string) (bool, error)
}

func (m *MockCompletionService) IsJobCompleted(ctx context.Context, bookingID string) (bool, error) {
	if m.IsJobCompletedFunc != nil {
		return m.IsJobCompletedFunc(ctx, bookingID)
	}
	return true, nil
}
