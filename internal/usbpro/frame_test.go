package usbpro

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	got, err := EncodeFrame(SetParametersLabel, []byte{0, 0, 9, 1, 40})
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	want := []byte{4, 5, 0, 0, 0, 9, 1, 40}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeFrame() = %v, want %v", got, want)
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(DMXLabel, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("EncodeFrame() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		wantErr error
		label   Label
		payload []byte
		n       int
	}{
		{name: "empty", in: nil, wantErr: ErrNeedMoreData},
		{name: "partial header", in: []byte{5, 2}, wantErr: ErrNeedMoreData},
		{name: "partial payload", in: []byte{5, 3, 0, 0, 0}, wantErr: ErrNeedMoreData},
		{name: "too large", in: []byte{5, 0xFF, 0xFF}, wantErr: ErrFrameTooLarge},
		{name: "empty payload", in: []byte{10, 0, 0}, label: SerialLabel, payload: []byte{}, n: 3},
		{
			name:    "trailing bytes",
			in:      []byte{5, 2, 0, 0, 0, 0x7E},
			label:   ReceivedDMXLabel,
			payload: []byte{0, 0},
			n:       5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, n, err := DecodeFrame(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeFrame() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if f.Label != tt.label || !bytes.Equal(f.Payload, tt.payload) || n != tt.n {
				t.Errorf("DecodeFrame() = %v %v %d, want %v %v %d", f.Label, f.Payload, n, tt.label, tt.payload, tt.n)
			}
		})
	}
}

func TestLabelString(t *testing.T) {
	if got := DMXChangedLabel.String(); got != "dmx_changed" {
		t.Errorf("String() = %q", got)
	}
	if got := Label(200).String(); got != "unknown(200)" {
		t.Errorf("String() = %q", got)
	}
}
