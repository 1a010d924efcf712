package texture

// ManagerBuilderOption is a functional option for configuring a Manager.
type ManagerBuilderOption func(*managerImpl)

// WithMaxTextureSize lowers the size limit below the backend's reported maximum.
// Values <= 0 or above the backend limit are ignored.
//
// Parameters:
//   - size: the maximum width or height in pixels
//
// Returns:
//   - ManagerBuilderOption: a function that applies the limit
func WithMaxTextureSize(size int) ManagerBuilderOption {
	return func(m *managerImpl) {
		if size > 0 && (m.maxSize <= 0 || size < m.maxSize) {
			m.maxSize = size
		}
	}
}
