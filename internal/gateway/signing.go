// Package gateway реализует протокол платежного шлюза: каноническую строку параметров,
// подпись запросов, проверку подписи уведомлений и клиентов шлюза.
package gateway

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
)

// SignatureField имя параметра с подписью
const SignatureField = domain.FieldSignature

// Algorithm алгоритм дайджеста подписи
type Algorithm string

const (
	// AlgorithmMD5 алгоритм, которого требует протокол шлюза
	AlgorithmMD5    Algorithm = "md5"
	AlgorithmSHA256 Algorithm = "sha256"
)

// ParseAlgorithm разбирает имя алгоритма из конфигурации, пустое значение - md5
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlgorithmMD5:
		return AlgorithmMD5, nil
	case AlgorithmSHA256:
		return AlgorithmSHA256, nil
	default:
		return "", fmt.Errorf("unsupported signature algorithm %q", s)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == AlgorithmSHA256 {
		return sha256.New()
	}
	return md5.New()
}

// Canonicalize строит строку для подписи: параметры сортируются по ключу побайтно,
// соединяются как key=value через '&', в конец добавляется &passphrase=<secret>.
// Параметр signature в каноническую строку не входит.
func Canonicalize(params map[string]string, passphrase string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SignatureField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}
	b.WriteString("passphrase=")
	b.WriteString(passphrase)
	return b.String()
}

// Signer подписывает запросы и проверяет подписи уведомлений
type Signer struct {
	passphrase string
	algorithm  Algorithm
}

// SignerOption настройка Signer
type SignerOption func(*Signer)

// WithAlgorithm задает алгоритм дайджеста
func WithAlgorithm(a Algorithm) SignerOption {
	return func(s *Signer) {
		s.algorithm = a
	}
}

// NewSigner создает новый Signer с общим секретом
func NewSigner(passphrase string, opts ...SignerOption) *Signer {
	s := &Signer{passphrase: passphrase, algorithm: AlgorithmMD5}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Algorithm возвращает используемый алгоритм
func (s *Signer) Algorithm() Algorithm {
	return s.algorithm
}

// Sign вычисляет подпись набора параметров в виде hex-строки
func (s *Signer) Sign(params map[string]string) string {
	h := s.algorithm.newHash()
	h.Write([]byte(Canonicalize(params, s.passphrase)))
	return hex.EncodeToString(h.Sum(nil))
}

// Signed возвращает копию параметров с добавленной подписью
func (s *Signer) Signed(params map[string]string) (map[string]string, string) {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		if k != SignatureField {
			out[k] = v
		}
	}
	sig := s.Sign(out)
	out[SignatureField] = sig
	return out, sig
}

// Verify пересчитывает подпись уведомления без поля signature
// и сравнивает ее с полученной за постоянное время.
func (s *Signer) Verify(params map[string]string) error {
	received := strings.ToLower(strings.TrimSpace(params[SignatureField]))
	if received == "" {
		return fmt.Errorf("%w: signature missing", domain.ErrSignatureMismatch)
	}

	expected := s.Sign(params)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return domain.ErrSignatureMismatch
	}
	return nil
}
