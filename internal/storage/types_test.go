package storage

import "testing"

func TestVolumeSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    VolumeSpec
		wantErr bool
	}{
		{name: "qcow2", spec: VolumeSpec{Name: "v", Format: VolumeFormatQCOW2, Capacity: GiB(10)}},
		{name: "raw", spec: VolumeSpec{Name: "v", Format: VolumeFormatRaw, Capacity: 4096}},
		{name: "backed", spec: VolumeSpec{Name: "v", Format: VolumeFormatQCOW2, Capacity: 1, BackingVolume: "base", BackingFormat: VolumeFormatRaw}},
		{name: "no name", spec: VolumeSpec{Format: VolumeFormatRaw, Capacity: 1}, wantErr: true},
		{name: "no format", spec: VolumeSpec{Name: "v", Capacity: 1}, wantErr: true},
		{name: "zero capacity", spec: VolumeSpec{Name: "v", Format: VolumeFormatRaw}, wantErr: true},
		{name: "raw with backing", spec: VolumeSpec{Name: "v", Format: VolumeFormatRaw, Capacity: 1, BackingVolume: "base"}, wantErr: true},
		{name: "bad backing format", spec: VolumeSpec{Name: "v", Format: VolumeFormatQCOW2, Capacity: 1, BackingVolume: "base", BackingFormat: "vmdk"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGiB(t *testing.T) {
	if got := GiB(2); got != 2147483648 {
		t.Errorf("GiB(2) = %d", got)
	}
}
