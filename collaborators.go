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
	"fmt"
	"net/http"
	"time"

	"github.com/payhold-io/payhold/config"
	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/internal/request"
)

// Booking is the read-only view of a booking the payment flows need: who is
// paying, who gets paid out, and where the transfer lands.
type Booking struct {
	BookingID     string `json:"booking_id"`
	ClientEmail   string `json:"client_email"`
	ProviderID    string `json:"provider_id"`
	RecipientCode string `json:"recipient_code"`
	Status        string `json:"status"`
}

// BookingService looks bookings up from the booking system.
type BookingService interface {
	GetBooking(ctx context.Context, bookingID string) (*Booking, error)
}

// CompletionService answers whether a booking's job has been confirmed
// complete. Release of escrowed funds is gated on this proof.
type CompletionService interface {
	IsJobCompleted(ctx context.Context, bookingID string) (bool, error)
}

// HTTPBookingService implements BookingService over the booking system's
// internal API.
type HTTPBookingService struct {
	url     string
	auth    string
	timeout time.Duration
}

func NewHTTPBookingService(conf *config.Configuration) *HTTPBookingService {
	timeout := time.Duration(conf.Booking.Timeout) * time.Second
	if conf.Booking.Timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBookingService{url: conf.Booking.Url, auth: conf.Booking.Headers.Authorization, timeout: timeout}
}

func (s *HTTPBookingService) GetBooking(ctx context.Context, bookingID string) (*Booking, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/bookings/%s", s.url, bookingID), nil)
	if err != nil {
		return nil, err
	}
	if s.auth != "" {
		req.Header.Set("Authorization", s.auth)
	}

	var booking Booking
	resp, err := request.CallWithTimeout(req, &booking, s.timeout)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Booking lookup failed", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Booking '%s' not found", bookingID), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Booking lookup returned %d", resp.StatusCode), nil)
	}
	return &booking, nil
}

// HTTPCompletionService implements CompletionService over the job-completion
// internal API.
type HTTPCompletionService struct {
	url     string
	auth    string
	timeout time.Duration
}

func NewHTTPCompletionService(conf *config.Configuration) *HTTPCompletionService {
	timeout := time.Duration(conf.Completion.Timeout) * time.Second
	if conf.Completion.Timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCompletionService{url: conf.Completion.Url, auth: conf.Completion.Headers.Authorization, timeout: timeout}
}

func (s *HTTPCompletionService) IsJobCompleted(ctx context.Context, bookingID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/bookings/%s/completion", s.url, bookingID), nil)
	if err != nil {
		return false, err
	}
	if s.auth != "" {
		req.Header.Set("Authorization", s.auth)
	}

	var proof struct {
		Completed bool `json:"completed"`
	}
	resp, err := request.CallWithTimeout(req, &proof, s.timeout)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Completion proof lookup failed", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Completion proof lookup returned %d", resp.StatusCode), nil)
	}
	return proof.Completed, nil
}
