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

	"github.com/sirupsen/logrus"

	"github.com/payhold-io/payhold/model"
)

const backfillBatchSize = 100

// BackfillBreakdown repairs payments past PENDING whose breakdown columns
// were never written. Each payment gets the standard split computed from its
// amount; amount and status are never touched, so the pass is idempotent and
// safe to run repeatedly. It returns the number of payments repaired.
func (p *Payhold) BackfillBreakdown(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Backfilling payment breakdowns")
	defer span.End()

	feeRate, err := p.feeRate()
	if err != nil {
		return 0, err
	}

	repaired := 0
	var offset int64

	for {
		batch, err := p.datasource.GetPaymentsMissingBreakdown(ctx, backfillBatchSize, offset)
		if err != nil {
			return repaired, err
		}
		if len(batch) == 0 {
			break
		}

		repairedInBatch := 0
		for _, payment := range batch {
			if !payment.ApplyBreakdown(feeRate, false) {
				continue
			}
			if !payment.BreakdownConsistent() {
				logrus.Errorf("computed breakdown for payment %s does not sum to its amount, skipping", payment.PaymentID)
				continue
			}
			if err := p.datasource.UpdatePaymentBreakdown(ctx, payment); err != nil {
				logrus.Errorf("failed to backfill payment %s: %v", payment.PaymentID, err)
				continue
			}
			repaired++
			repairedInBatch++
		}

		// repaired rows fall out of the predicate; only advance past rows
		// that could not be repaired
		offset += int64(len(batch) - repairedInBatch)

		if len(batch) < backfillBatchSize {
			break
		}
	}

	logrus.Infof("breakdown backfill repaired %d payments", repaired)
	return repaired, nil
}

// GetPaymentsMissingBreakdown exposes the backfill candidates for operator
// inspection before running the repair.
func (p *Payhold) GetPaymentsMissingBreakdown(ctx context.Context, batchSize int, offset int64) ([]*model.Payment, error) {
	return p.datasource.GetPaymentsMissingBreakdown(ctx, batchSize, offset)
}
