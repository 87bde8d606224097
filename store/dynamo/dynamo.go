package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gofrs/uuid/v5"

	"github.com/pregram/pregram/models"
)

type DynamoPregramStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoPregramStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoPregramStore, error) {
	client, err := newDynamoDBClient(context.Background(), devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	foundTable := false
	for _, table := range tables {
		if table == tableName {
			foundTable = true
			break
		}
	}
	if !foundTable {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoPregramStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoPregramStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	userId, err := uuid.NewV4()
	if err != nil {
		return models.User{}, err
	}
	user.Id = userId.String()
	if user.MaxAccountSlots == 0 {
		user.MaxAccountSlots = 1
	}

	du := userToDynamo(user)
	du.Created = time.Now().Unix()
	du, _, err = ensureItem(dynamoStore, ctx, du)
	if err != nil {
		return models.User{}, err
	}

	user = userFromDynamo(du)
	return user, nil
}

func (dynamoStore *DynamoPregramStore) GetUser(ctx context.Context, provider string, providerId string) (models.User, error) {
	du, err := getItem[dynamoUser](dynamoStore, ctx, "USER#"+provider+"#"+providerId, "PROFILE", false)
	if err != nil {
		return models.User{}, err
	}

	user := userFromDynamo(du)
	return user, nil
}

func (dynamoStore *DynamoPregramStore) IncrementMaxAccountSlots(ctx context.Context, provider string, providerId string, delta int) error {
	// Strict mode: only increment if the profile exists (prevents partial records)
	return incrementCounter(dynamoStore, ctx, "USER#"+provider+"#"+providerId, "PROFILE", "MaxAccountSlots", delta, false)
}

func (dynamoStore *DynamoPregramStore) PutProject(ctx context.Context, project models.Project) error {
	dp, err := projectToDynamo(project)
	if err != nil {
		return fmt.Errorf("marshal project images: %w", err)
	}
	return putItem(dynamoStore, ctx, dp)
}

func (dynamoStore *DynamoPregramStore) GetProject(ctx context.Context, ownerId string, projectId string) (models.Project, error) {
	dp, err := getItem[dynamoProject](dynamoStore, ctx, "PROJECT#"+ownerId, projectId, false)
	if err != nil {
		return models.Project{}, err
	}
	return projectFromDynamo(dp)
}

func (dynamoStore *DynamoPregramStore) ListProjects(ctx context.Context, ownerId string) ([]models.Project, error) {
	dynamoProjects, err := queryAllByPK[dynamoProject](dynamoStore, ctx, "PROJECT#"+ownerId, true, 0)
	if err != nil {
		return nil, err
	}

	projects := make([]models.Project, 0, len(dynamoProjects))
	for _, dp := range dynamoProjects {
		p, err := projectFromDynamo(dp)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, nil
}

func (dynamoStore *DynamoPregramStore) PutAccount(ctx context.Context, account models.Account) error {
	return putItem(dynamoStore, ctx, accountToDynamo(account))
}

func (dynamoStore *DynamoPregramStore) ListAccounts(ctx context.Context, ownerId string) ([]models.Account, error) {
	dynamoAccounts, err := queryAllByPK[dynamoAccount](dynamoStore, ctx, "ACCOUNT#"+ownerId, true, 0)
	if err != nil {
		return nil, err
	}

	accounts := make([]models.Account, 0, len(dynamoAccounts))
	for _, da := range dynamoAccounts {
		accounts = append(accounts, accountFromDynamo(da))
	}

	return accounts, nil
}

func (dynamoStore *DynamoPregramStore) DeleteAccount(ctx context.Context, ownerId string, accountId string) error {
	return deleteItemWithCondition(dynamoStore, ctx, "ACCOUNT#"+ownerId, accountId, "OwnerId", ownerId)
}

func (dynamoStore *DynamoPregramStore) GetCurrentAccount(ctx context.Context, ownerId string) (string, error) {
	df, err := getItem[dynamoFocus](dynamoStore, ctx, "FOCUS#"+ownerId, "CURRENT", false)
	if err != nil {
		return "", err
	}
	return df.AccountId, nil
}

func (dynamoStore *DynamoPregramStore) SetCurrentAccount(ctx context.Context, ownerId string, accountId string) error {
	return putItem(dynamoStore, ctx, dynamoFocus{
		PK:        "FOCUS#" + ownerId,
		SK:        "CURRENT",
		AccountId: accountId,
	})
}

func (dynamoStore *DynamoPregramStore) GetBoardSet(ctx context.Context, accountId string) (models.BoardSet, error) {
	dbs, err := getItem[dynamoBoardSet](dynamoStore, ctx, "LAYOUTS#"+accountId, "SET", false)
	if err != nil {
		return models.BoardSet{}, err
	}
	return boardSetFromDynamo(dbs)
}

func (dynamoStore *DynamoPregramStore) WriteBoardSets(ctx context.Context, sets []models.BoardSet) ([]models.BoardSet, error) {
	// Convert board sets to Dynamo structs and then to WriteRequests
	var writeRequests []types.WriteRequest
	for _, set := range sets {
		dbs, err := boardSetToDynamo(set)
		if err != nil {
			return nil, fmt.Errorf("marshal board set: %w", err)
		}
		avMap, err := attributevalue.MarshalMap(dbs)
		if err != nil {
			return nil, fmt.Errorf("marshal error: %w", err)
		}

		writeRequests = append(writeRequests, types.WriteRequest{
			PutRequest: &types.PutRequest{
				Item: avMap,
			},
		})
	}

	unprocessed, err := writeBatchRequests[dynamoBoardSet](dynamoStore, ctx, writeRequests)

	// Convert unprocessed Dynamo items back to models.BoardSet
	unbatchedSets := make([]models.BoardSet, 0, len(unprocessed))
	for _, u := range unprocessed {
		set, convErr := boardSetFromDynamo(u)
		if convErr != nil {
			continue
		}
		unbatchedSets = append(unbatchedSets, set)
	}

	return unbatchedSets, err
}

func (dynamoStore *DynamoPregramStore) DeleteBoardSet(ctx context.Context, accountId string) error {
	return deleteItemWithCondition(dynamoStore, ctx, "LAYOUTS#"+accountId, "SET", "", "")
}
