//go:build !darwin

package permissions

// CheckMicrophone reports Authorized on platforms without a capture prompt.
func CheckMicrophone() Status {
	return Authorized
}

func RequestMicrophone() {}
