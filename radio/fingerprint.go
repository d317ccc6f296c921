package radio

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/zeebo/xxh3"
)

// Fingerprint returns a 64-bit hash of the event's time, subscription, kind,
// and payload content. Two events with identical content and timestamp hash to
// the same value; export uses it as a stable row key.
func (e Event) Fingerprint() uint64 {
	h := xxh3.New()
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Time.UnixNano()))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(e.SubscriptionID)))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(int64(e.Kind())))
	_, _ = h.Write(buf[:])
	writePayload(h, e.Payload)
	return h.Sum64()
}

func writePayload(h *xxh3.Hasher, p Payload) {
	switch v := p.(type) {
	case BroadcastReceived:
		// Map iteration order is random; hash extras in key order.
		_, _ = h.WriteString(string(v.Action))
		keys := make([]string, 0, len(v.Extras))
		for k := range v.Extras {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = h.WriteString(k)
			_, _ = h.WriteString("=")
			_, _ = h.WriteString(v.Extras[k])
		}
	case nil:
	default:
		_, _ = fmt.Fprintf(h, "%+v", deref(v))
	}
}

// deref flattens optional fields so pointer addresses never reach the hash.
func deref(p Payload) any {
	switch v := p.(type) {
	case CellInfoObserved:
		return flattenCells(v.Cells)
	case NetworkScanUpdate:
		return struct {
			Status ScanStatus
			Cells  []flatCell
			Listed bool
		}{v.Status, flattenCells(v.Cells), v.Cells != nil}
	case RegistrationFailed:
		return struct {
			Cell                flatCell
			ChosenPLMN          string
			Domain              int
			CauseCode           int
			AdditionalCauseCode int
		}{flattenCell(CellObservation{Identity: v.Cell}), v.ChosenPLMN, v.Domain, v.CauseCode, v.AdditionalCauseCode}
	default:
		return v
	}
}

type flatCell struct {
	Generation   Generation
	MCC, MNC     string
	Channel, PCI int
	HasChannel   bool
	HasPCI       bool
	OperatorName string
	Registered   bool
	Signal       SignalMeasurement
	HasSignal    bool
}

func flattenCells(cells []CellObservation) []flatCell {
	out := make([]flatCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, flattenCell(c))
	}
	return out
}

func flattenCell(c CellObservation) flatCell {
	fc := flatCell{
		Generation:   c.Identity.Generation,
		MCC:          c.Identity.MCC,
		MNC:          c.Identity.MNC,
		OperatorName: c.Identity.OperatorName,
		Registered:   c.Registered,
	}
	if c.Identity.Channel != nil {
		fc.Channel, fc.HasChannel = *c.Identity.Channel, true
	}
	if c.Identity.PCI != nil {
		fc.PCI, fc.HasPCI = *c.Identity.PCI, true
	}
	if c.Signal != nil {
		fc.Signal, fc.HasSignal = *c.Signal, true
	}
	return fc
}
