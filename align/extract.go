//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package align

import (
	"fmt"

	"github.com/slaxman1978/fbpcs/lift"
	"github.com/slaxman1978/fbpcs/share"
)

// extract reconstructs the typed share columns from the two aligned
// share batches. Each batch's bit-planes are transposed back to
// row-major share strings and decoded with the same codecs the encode
// path used, so the offsets agree by construction. The decoding is
// purely structural: it packs this party's bit shares into wider
// share values and never materializes cleartext.
func (p *InputProcessor) extract(publisherBatch, partnerBatch *share.StringBatch,
	numRows int) (*lift.ProcessedData, error) {

	if publisherBatch.RowBytes() != p.publisherCodec.RowBytes() {
		return nil, fmt.Errorf("align: publisher rows are %d bytes, "+
			"layout has %d", publisherBatch.RowBytes(),
			p.publisherCodec.RowBytes())
	}
	if partnerBatch.RowBytes() != p.partnerCodec.RowBytes() {
		return nil, fmt.Errorf("align: partner rows are %d bytes, "+
			"layout has %d", partnerBatch.RowBytes(),
			p.partnerCodec.RowBytes())
	}

	data := lift.NewProcessedData(numRows, p.partnerCodec.Conversions())

	for i, buf := range publisherBatch.Rows() {
		row, err := p.publisherCodec.Decode(buf)
		if err != nil {
			return nil, err
		}
		data.SetPublisherRow(i, row)
	}
	for i, buf := range partnerBatch.Rows() {
		row, err := p.partnerCodec.Decode(buf)
		if err != nil {
			return nil, err
		}
		data.SetPartnerRow(i, row)
	}
	return data, nil
}
