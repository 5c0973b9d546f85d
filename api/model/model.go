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
package model

import (
	"github.com/shopspring/decimal"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/payhold-io/payhold/model"
)

type InitiatePayment struct {
	BookingID string                 `json:"booking_id"`
	Amount    float64                `json:"amount"`
	Currency  string                 `json:"currency"`
	Reference string                 `json:"reference"`
	MetaData  map[string]interface{} `json:"meta_data"`
}

// GatewayWebhook is the envelope the payment gateway posts to the webhook
// endpoint. Fields beyond these two are kept verbatim in the stored payload.
type GatewayWebhook struct {
	Event     string `json:"event"`
	Reference string `json:"reference"`
}

func (p *InitiatePayment) ValidateInitiatePayment() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.BookingID, validation.Required),
		validation.Field(&p.Amount, validation.Required, validation.Min(0.01)),
		validation.Field(&p.Currency, validation.Required, validation.Length(3, 3)),
	)
}

func (w *GatewayWebhook) ValidateGatewayWebhook() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.Event, validation.Required),
		validation.Field(&w.Reference, validation.Required),
	)
}

func (p *InitiatePayment) ToPayment() *model.Payment {
	return &model.Payment{
		BookingID: p.BookingID,
		Amount:    decimal.NewFromFloat(p.Amount),
		Currency:  p.Currency,
		Reference: p.Reference,
		MetaData:  p.MetaData,
	}
}
