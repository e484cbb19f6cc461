package domain_test

import (
	"errors"
	"strings"

	"github.com/stretchr/testify/mock"
)

var errAuthFailed = errors.New("cipher: message authentication failed")

// domain.IMnemonicCypher whose ciphertexts depend on the password, so that
// only the matching password decrypts them.
type mockMnemonicCypher struct {
	mock.Mock
}

func newMockedMnemonicCypher(passwords ...string) *mockMnemonicCypher {
	m := &mockMnemonicCypher{}
	plaintext := []byte(strings.Join(mnemonic, " "))
	for _, p := range passwords {
		ciphertext := []byte("enc:" + p)
		m.On("Encrypt", mock.Anything, []byte(p)).Return(ciphertext, nil)
		m.On("Decrypt", ciphertext, []byte(p)).Return(plaintext, nil)
	}
	m.On("Decrypt", mock.Anything, mock.Anything).Return(nil, errAuthFailed)
	return m
}

func (m *mockMnemonicCypher) Encrypt(mnemonic, password []byte) ([]byte, error) {
	args := m.Called(mnemonic, password)
	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	return res, args.Error(1)
}

func (m *mockMnemonicCypher) Decrypt(encryptedMnemonic, password []byte) ([]byte, error) {
	args := m.Called(encryptedMnemonic, password)
	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	return res, args.Error(1)
}
