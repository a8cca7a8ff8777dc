package services

func applyFuncOptions[T any](entity T, opts ...func(entity T) error) error {
	for _, opt := range opts {
		err := opt(entity)
		if err != nil {
			return err
		}
	}
	return nil
}

func Deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}
