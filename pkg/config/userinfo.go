package config

import (
	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/validate"
)

// SetUserID stores a user id. An empty value removes the id.
func (m *Manager) SetUserID(name, value string) error {
	if err := validate.UserIDName(name); err != nil {
		return err
	}
	if err := validate.UserIDValue(value); err != nil {
		return err
	}
	if value == "" {
		return m.wrapStore(m.store.DeleteUserID(name))
	}
	return m.wrapStore(m.store.SetUserID(name, value))
}

// GetUserID returns the stored id, or "" when name is not set
func (m *Manager) GetUserID(name string) (string, error) {
	if err := validate.UserIDName(name); err != nil {
		return "", err
	}
	v, err := m.store.GetUserID(name)
	return v, m.wrapStore(err)
}

// SetUserProperty stores a user property. An empty value removes it.
func (m *Manager) SetUserProperty(name, value string) error {
	if err := validate.UserPropertyName(name); err != nil {
		return err
	}
	if err := validate.UserPropertyValue(value); err != nil {
		return err
	}
	if value == "" {
		return m.wrapStore(m.store.DeleteUserProperty(name))
	}
	return m.wrapStore(m.store.SetUserProperty(name, value))
}

// GetUserProperty returns the stored property, or "" when name is not set
func (m *Manager) GetUserProperty(name string) (string, error) {
	if err := validate.UserPropertyName(name); err != nil {
		return "", err
	}
	v, err := m.store.GetUserProperty(name)
	return v, m.wrapStore(err)
}

// UserIDs returns every stored user id
func (m *Manager) UserIDs() (map[string]string, error) {
	ids, err := m.store.ListUserIDs()
	return ids, m.wrapStore(err)
}

// UserProperties returns every stored user property
func (m *Manager) UserProperties() (map[string]string, error) {
	props, err := m.store.ListUserProperties()
	return props, m.wrapStore(err)
}

// ClearUserInfo removes all user ids and properties
func (m *Manager) ClearUserInfo() error {
	return m.wrapStore(m.store.ClearUserInfo())
}

func (m *Manager) wrapStore(err error) error {
	if err == nil {
		return nil
	}
	m.logger.Error().Err(err).Msg("User info store failure")
	return errcode.Wrap(errcode.Internal, err)
}
