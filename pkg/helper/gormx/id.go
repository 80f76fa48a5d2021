package gormx

import "github.com/lithammer/shortuuid/v4"

// GenerateID set new short uuid to id if it is empty
func GenerateID(id *string) error {
	if *id == "" {
		*id = shortuuid.New()
	}
	return nil
}
