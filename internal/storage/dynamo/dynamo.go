// Package dynamo реализует хранилище пользователей на DynamoDB.
//
// Используется одна таблица с ключом раздела pk. Запись пользователя
// хранится под USER#<username>, занятость почты фиксирует отдельный элемент
// EMAIL#<email>; оба пишутся одной транзакцией. Поиск по токенам идёт через
// разреженные глобальные индексы, результат перечитывается строгим чтением.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/magabrotheeeer/account-service/internal/models"
)

const (
	userPrefix  = "USER#"
	emailPrefix = "EMAIL#"

	// VerificationIndex имя индекса по токену подтверждения почты.
	VerificationIndex = "verification_token-index"
	// ResetIndex имя индекса по токену сброса пароля.
	ResetIndex = "reset_token-index"

	conditionalCheckFailed = "ConditionalCheckFailed"
)

var errEmailImmutable = errors.New("email change is not supported")

// API подмножество клиента DynamoDB, которое использует Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type userItem struct {
	PK string `dynamodbav:"pk"`
	models.User
}

type emailItem struct {
	PK       string `dynamodbav:"pk"`
	Username string `dynamodbav:"username"`
}

// Store хранилище пользователей на DynamoDB.
type Store struct {
	client API
	table  string
}

// New создает Store поверх клиента DynamoDB.
func New(client API, table string) *Store {
	return &Store{client: client, table: table}
}

// NewClient создает клиент DynamoDB. Непустой endpoint переопределяет адрес
// сервиса, например для DynamoDB Local.
func NewClient(awsCfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func userKey(username string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: userPrefix + username}}
}

func emailKey(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: emailPrefix + email}}
}

// EnsureTable создает таблицу с индексами, если её нет, и ждёт готовности.
func (s *Store) EnsureTable(ctx context.Context) error {
	const op = "storage.dynamo.EnsureTable"
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}

	keysOnly := &types.Projection{ProjectionType: types.ProjectionTypeKeysOnly}
	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("verification_token"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("reset_token"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName:  aws.String(VerificationIndex),
				KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String("verification_token"), KeyType: types.KeyTypeHash}},
				Projection: keysOnly,
			},
			{
				IndexName:  aws.String(ResetIndex),
				KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String("reset_token"), KeyType: types.KeyTypeHash}},
				Projection: keysOnly,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	return nil
}

// Create сохраняет пользователя и занимает его почту одной транзакцией.
func (s *Store) Create(ctx context.Context, user *models.User) error {
	const op = "storage.dynamo.Create"

	rec := *user
	rec.Version = 1
	userAV, err := attributevalue.MarshalMap(userItem{PK: userPrefix + rec.Username, User: rec})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	emailAV, err := attributevalue.MarshalMap(emailItem{PK: emailPrefix + rec.Email, Username: rec.Username})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}

	notExists := aws.String("attribute_not_exists(pk)")
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(s.table), Item: userAV, ConditionExpression: notExists}},
			{Put: &types.Put{TableName: aws.String(s.table), Item: emailAV, ConditionExpression: notExists}},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if aws.ToString(reason.Code) == conditionalCheckFailed {
					return fmt.Errorf("%s: %w", op, models.ErrConflict)
				}
			}
		}
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	user.Version = rec.Version
	return nil
}

// GetByUsername возвращает пользователя по имени.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.dynamo.GetByUsername"
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// GetByEmail возвращает пользователя по почте.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.dynamo.GetByEmail"
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            emailKey(email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	var claim emailItem
	if err := attributevalue.UnmarshalMap(out.Item, &claim); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	user, err := s.getUser(ctx, claim.Username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.Email != email {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return user, nil
}

// FindByVerificationToken ищет пользователя по токену подтверждения почты.
func (s *Store) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	const op = "storage.dynamo.FindByVerificationToken"
	user, err := s.findByIndex(ctx, VerificationIndex, "verification_token", token, func(u *models.User) bool {
		return u.VerificationToken != nil && *u.VerificationToken == token
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// FindByResetToken ищет пользователя по токену сброса пароля.
func (s *Store) FindByResetToken(ctx context.Context, token string) (*models.User, error) {
	const op = "storage.dynamo.FindByResetToken"
	user, err := s.findByIndex(ctx, ResetIndex, "reset_token", token, func(u *models.User) bool {
		return u.ResetToken != nil && *u.ResetToken == token
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Update перезаписывает пользователя условной записью по версии.
func (s *Store) Update(ctx context.Context, user *models.User) error {
	const op = "storage.dynamo.Update"

	next := *user
	next.Version = user.Version + 1
	av, err := attributevalue.MarshalMap(userItem{PK: userPrefix + next.Username, User: next})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(#pk) AND #v = :v AND #e = :e"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "pk",
			"#v":  "version",
			"#e":  "email",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(user.Version, 10)},
			":e": &types.AttributeValueMemberS{Value: user.Email},
		},
	})
	if err == nil {
		user.Version = next.Version
		return nil
	}

	var failed *types.ConditionalCheckFailedException
	if !errors.As(err, &failed) {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	current, getErr := s.getUser(ctx, user.Username)
	switch {
	case errors.Is(getErr, models.ErrNotFound):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case getErr != nil:
		return fmt.Errorf("%s: %w", op, getErr)
	case current.Version != user.Version:
		return fmt.Errorf("%s: %w", op, models.ErrVersionConflict)
	default:
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, errEmailImmutable)
	}
}

// Ping проверяет доступность таблицы.
func (s *Store) Ping(ctx context.Context) error {
	const op = "storage.dynamo.Ping"
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}); err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
	}
	return nil
}

// Close ничего не делает, клиент SDK не держит соединений, требующих закрытия.
func (s *Store) Close() error {
	return nil
}

func (s *Store) getUser(ctx context.Context, username string) (*models.User, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            userKey(username),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	if len(out.Item) == 0 {
		return nil, models.ErrNotFound
	}
	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	return &item.User, nil
}

// findByIndex читает индекс (он согласован в конечном счёте) и перечитывает
// найденные записи строгим чтением.
func (s *Store) findByIndex(ctx context.Context, index, attr, token string, match func(*models.User) bool) (*models.User, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		IndexName:                aws.String(index),
		KeyConditionExpression:   aws.String("#t = :t"),
		ExpressionAttributeNames: map[string]string{"#t": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}

	for _, it := range out.Items {
		pk, ok := it["pk"].(*types.AttributeValueMemberS)
		if !ok || !strings.HasPrefix(pk.Value, userPrefix) {
			continue
		}
		user, err := s.getUser(ctx, strings.TrimPrefix(pk.Value, userPrefix))
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if match(user) {
			return user, nil
		}
	}
	return nil, models.ErrNotFound
}
