// Package secrets получает учётные данные внешних сервисов из переменных
// окружения или AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/lib/awsconf"
)

// ErrNotFound секрет с таким именем отсутствует.
var ErrNotFound = errors.New("secret not found")

// Credentials пара логин/пароль. Пароль хранится байтами, чтобы его можно
// было затереть после использования.
type Credentials struct {
	Username string
	Password []byte
}

// Wipe затирает пароль.
func (c *Credentials) Wipe() {
	for i := range c.Password {
		c.Password[i] = 0
	}
	c.Password = nil
}

// Provider источник учётных данных.
type Provider interface {
	GetCredentials(ctx context.Context, name string) (*Credentials, error)
}

// EnvProvider читает <PREFIX><NAME>_USER и <PREFIX><NAME>_PASS.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider создает EnvProvider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

// GetCredentials возвращает учётные данные из окружения.
func (p *EnvProvider) GetCredentials(_ context.Context, name string) (*Credentials, error) {
	const op = "secrets.EnvProvider.GetCredentials"
	base := strings.ToUpper(p.prefix + name)
	user, okUser := p.lookup(base + "_USER")
	pass, okPass := p.lookup(base + "_PASS")
	if !okUser && !okPass {
		return nil, fmt.Errorf("%s: %s: %w", op, name, ErrNotFound)
	}
	return &Credentials{Username: user, Password: []byte(pass)}, nil
}

// SecretsManagerAPI подмножество клиента Secrets Manager.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider читает секрет вида {"username": "...", "password": "..."}.
type AWSProvider struct {
	client SecretsManagerAPI
}

// NewAWSProvider создает провайдер поверх клиента Secrets Manager.
func NewAWSProvider(client SecretsManagerAPI) *AWSProvider {
	return &AWSProvider{client: client}
}

// NewSecretsManagerClient создает клиент Secrets Manager.
func NewSecretsManagerClient(cfg aws.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(cfg)
}

type secretPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GetCredentials возвращает учётные данные из секрета name.
func (p *AWSProvider) GetCredentials(ctx context.Context, name string) (*Credentials, error) {
	const op = "secrets.AWSProvider.GetCredentials"
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return nil, fmt.Errorf("%s: %s: %w", op, name, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("%s: secret %s has no string value", op, name)
	}
	var payload secretPayload
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Credentials{Username: payload.Username, Password: []byte(payload.Password)}, nil
}

// Lazy получает учётные данные при первом обращении и хранит их до Close.
// Неудачная попытка не кэшируется.
type Lazy struct {
	provider Provider
	name     string

	mu     sync.Mutex
	creds  *Credentials
	closed bool
}

// NewLazy создает Lazy для секрета name.
func NewLazy(provider Provider, name string) *Lazy {
	return &Lazy{provider: provider, name: name}
}

var errClosed = errors.New("credentials are closed")

// Get возвращает копию учётных данных.
func (l *Lazy) Get(ctx context.Context) (Credentials, error) {
	const op = "secrets.Lazy.Get"
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Credentials{}, fmt.Errorf("%s: %w", op, errClosed)
	}
	if l.creds == nil {
		creds, err := l.provider.GetCredentials(ctx, l.name)
		if err != nil {
			return Credentials{}, fmt.Errorf("%s: %w", op, err)
		}
		l.creds = creds
	}
	return Credentials{
		Username: l.creds.Username,
		Password: append([]byte(nil), l.creds.Password...),
	}, nil
}

// Close затирает закэшированные учётные данные. Повторный вызов безопасен.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.creds != nil {
		l.creds.Wipe()
		l.creds = nil
	}
	l.closed = true
	return nil
}

// NewProvider создает провайдер, выбранный в cfg.Provider.
func NewProvider(ctx context.Context, cfg config.Secrets, awsCfg config.AWS) (Provider, error) {
	const op = "secrets.NewProvider"
	switch cfg.Provider {
	case config.SecretsEnv:
		return NewEnvProvider(cfg.EnvPrefix), nil
	case config.SecretsAWS:
		sdkCfg, err := awsconf.Load(ctx, awsCfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return NewAWSProvider(NewSecretsManagerClient(sdkCfg)), nil
	default:
		return nil, fmt.Errorf("%s: unknown provider %q", op, cfg.Provider)
	}
}
