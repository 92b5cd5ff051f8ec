// Package volumelimit computes IOPS ceilings of RDS storage from the storage
// class, the allocated size and the provisioned IOPS figure. Bounds follow
// RDS, which allows larger volumes and gp3 IOPS than plain EBS.
package volumelimit

import (
	"errors"
	"fmt"
)

type StorageClass string

const (
	GP2     StorageClass = "gp2"
	GP3     StorageClass = "gp3"
	IO1     StorageClass = "io1"
	Unknown StorageClass = "unknown"
)

// ParseStorageClass maps the provider storage type string to a class.
// Unrecognized values are classified as Unknown.
func ParseStorageClass(s string) StorageClass {
	switch StorageClass(s) {
	case GP2, GP3, IO1:
		return StorageClass(s)
	default:
		return Unknown
	}
}

const (
	MinSizeGB = 1
	MaxSizeGB = 65536

	gp2IOPSPerGB    = 3
	gp2MinIOPS      = 100
	gp2MaxIOPS      = 16000
	gp2BurstIOPS    = 3000
	gp3BaselineIOPS = 3000
	gp3MaxIOPS      = 64000
	io1MinIOPS      = 100
	io1MaxIOPS      = 64000
)

var (
	ErrInvalidSize            = errors.New("storage size out of range")
	ErrMissingProvisionedIOPS = errors.New("provisioned iops missing")
	ErrInvalidIOPS            = errors.New("provisioned iops out of range")
	ErrUnsupportedClass       = errors.New("unsupported storage class")
)

// Limit is the sustained IOPS ceiling of a volume. BurstIOPS is 0 for
// classes without a burst tier.
type Limit struct {
	IOPS      int64
	BurstIOPS int64
}

// Calculate dispatches to the class specific formula. provisionedIOPS may be
// nil for classes that do not need it.
func Calculate(class StorageClass, sizeGB int64, provisionedIOPS *int64) (Limit, error) {
	switch class {
	case GP2:
		return CalculateGP2(sizeGB)
	case GP3:
		return CalculateGP3(sizeGB, provisionedIOPS)
	case IO1:
		if provisionedIOPS == nil {
			return Limit{}, fmt.Errorf("%s: %w", class, ErrMissingProvisionedIOPS)
		}
		return CalculateIO1(*provisionedIOPS)
	default:
		return Limit{}, fmt.Errorf("%q: %w", class, ErrUnsupportedClass)
	}
}

// CalculateGP2 gives 3 IOPS per GB bounded to [100, 16000]. Volumes with a
// baseline below 3000 can burst to 3000.
func CalculateGP2(sizeGB int64) (Limit, error) {
	if err := validateSize(sizeGB); err != nil {
		return Limit{}, err
	}
	iops := min(max(sizeGB*gp2IOPSPerGB, gp2MinIOPS), gp2MaxIOPS)
	var burst int64
	if iops < gp2BurstIOPS {
		burst = gp2BurstIOPS
	}
	return Limit{IOPS: iops, BurstIOPS: burst}, nil
}

// CalculateGP3 returns the 3000 IOPS baseline, or the provisioned figure
// when one is reported, clamped to [3000, 64000]. gp3 has no burst tier.
func CalculateGP3(sizeGB int64, provisionedIOPS *int64) (Limit, error) {
	if err := validateSize(sizeGB); err != nil {
		return Limit{}, err
	}
	if provisionedIOPS == nil || *provisionedIOPS <= 0 {
		return Limit{IOPS: gp3BaselineIOPS}, nil
	}
	return Limit{IOPS: min(max(*provisionedIOPS, gp3BaselineIOPS), gp3MaxIOPS)}, nil
}

func CalculateIO1(provisionedIOPS int64) (Limit, error) {
	if provisionedIOPS < io1MinIOPS || provisionedIOPS > io1MaxIOPS {
		return Limit{}, fmt.Errorf("io1 %d: %w", provisionedIOPS, ErrInvalidIOPS)
	}
	return Limit{IOPS: provisionedIOPS}, nil
}

func validateSize(sizeGB int64) error {
	if sizeGB < MinSizeGB || sizeGB > MaxSizeGB {
		return fmt.Errorf("%d GB: %w", sizeGB, ErrInvalidSize)
	}
	return nil
}
