package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/domain/coupon"
)

// DynamoAPI is the subset of the DynamoDB client the coupon store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoCouponRepository implements coupon.Repository on a single DynamoDB
// table keyed by (pk, sk):
//
//	COUPON#<id>   META           the definition and used_count
//	COUPON#<id>   ORDER#<order>  one per redemption
//	COUPON#<id>   USER#<user>    reuse guard per user
//	COUPON#<id>   EMAIL#<email>  reuse guard per email
//	CODE#<code>   META           unique code, points at the coupon id
//	REDEMPTION#<order> META      points at the coupon id for Release
//
// Redeem writes all of its items in one TransactWriteItems call, so the
// usage ceiling and the reuse guards hold under concurrent checkouts.
type DynamoCouponRepository struct {
	client DynamoAPI
	table  string
}

func NewDynamoCouponRepository(client DynamoAPI, table string) *DynamoCouponRepository {
	return &DynamoCouponRepository{client: client, table: table}
}

const metaSK = "META"

type dynamoCoupon struct {
	PK          string    `dynamodbav:"pk"`
	SK          string    `dynamodbav:"sk"`
	ID          string    `dynamodbav:"id"`
	Code        string    `dynamodbav:"code"`
	Type        string    `dynamodbav:"type"`
	Value       string    `dynamodbav:"value"`
	MinSubtotal string    `dynamodbav:"min_subtotal"`
	UsageLimit  int       `dynamodbav:"usage_limit"`
	UsedCount   int       `dynamodbav:"used_count"`
	StartDate   time.Time `dynamodbav:"start_date"`
	ExpiryDate  time.Time `dynamodbav:"expiry_date"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

// dynamoLedger is every item that points at a coupon: the code claim, the
// redemption marker and the per-coupon guards.
type dynamoLedger struct {
	PK         string    `dynamodbav:"pk"`
	SK         string    `dynamodbav:"sk"`
	CouponID   string    `dynamodbav:"coupon_id"`
	OrderID    string    `dynamodbav:"order_id,omitempty"`
	UserID     string    `dynamodbav:"user_id,omitempty"`
	Email      string    `dynamodbav:"email,omitempty"`
	RedeemedAt time.Time `dynamodbav:"redeemed_at,omitempty"`
}

func couponPK(id string) string        { return "COUPON#" + id }
func codePK(code string) string        { return "CODE#" + code }
func redemptionPK(order string) string { return "REDEMPTION#" + order }

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

func toDynamoCoupon(c *coupon.Coupon) dynamoCoupon {
	return dynamoCoupon{
		PK:          couponPK(c.ID),
		SK:          metaSK,
		ID:          c.ID,
		Code:        c.Code,
		Type:        string(c.Type),
		Value:       c.Value.String(),
		MinSubtotal: c.MinSubtotal.String(),
		UsageLimit:  c.UsageLimit,
		StartDate:   c.StartDate,
		ExpiryDate:  c.ExpiryDate,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (d dynamoCoupon) coupon() (*coupon.Coupon, error) {
	value, err := decimal.NewFromString(d.Value)
	if err != nil {
		return nil, errors.Wrap(err, "parse value")
	}
	minSubtotal, err := decimal.NewFromString(d.MinSubtotal)
	if err != nil {
		return nil, errors.Wrap(err, "parse min subtotal")
	}
	return &coupon.Coupon{
		ID:          d.ID,
		Code:        d.Code,
		Type:        coupon.Type(d.Type),
		Value:       value,
		MinSubtotal: minSubtotal,
		UsageLimit:  d.UsageLimit,
		UsedCount:   d.UsedCount,
		StartDate:   d.StartDate,
		ExpiryDate:  d.ExpiryDate,
		UsersUsed:   []string{},
		EmailsUsed:  []string{},
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// conditionFailed reports which transaction items failed their condition.
func conditionFailed(err error) (map[int]bool, bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, false
	}
	failed := make(map[int]bool)
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			failed[i] = true
		}
	}
	return failed, true
}

// EnsureTable creates the table when it does not exist yet.
func (r *DynamoCouponRepository) EnsureTable(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return errors.Wrap(err, "describe table")
	}
	_, err = r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(r.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create table")
	}
	return nil
}

func (r *DynamoCouponRepository) put(v any, condition string) (types.TransactWriteItem, error) {
	av, err := attributevalue.MarshalMap(v)
	if err != nil {
		return types.TransactWriteItem{}, errors.Wrap(err, "marshal item")
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:           aws.String(r.table),
		Item:                av,
		ConditionExpression: aws.String(condition),
	}}, nil
}

func (r *DynamoCouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	meta, err := r.put(toDynamoCoupon(c), "attribute_not_exists(pk)")
	if err != nil {
		return err
	}
	claim, err := r.put(dynamoLedger{PK: codePK(c.Code), SK: metaSK, CouponID: c.ID}, "attribute_not_exists(pk)")
	if err != nil {
		return err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{meta, claim},
	})
	if failed, ok := conditionFailed(err); ok && failed[1] {
		return coupon.ErrCodeTaken
	}
	if err != nil {
		return errors.Wrap(err, "create coupon")
	}
	return nil
}

// definitionUpdate sets every field of the definition and leaves used_count
// alone.
func (r *DynamoCouponRepository) definitionUpdate(c *coupon.Coupon) (*types.Update, error) {
	values, err := attributevalue.MarshalMap(map[string]any{
		":code":   c.Code,
		":type":   string(c.Type),
		":value":  c.Value.String(),
		":min":    c.MinSubtotal.String(),
		":limit":  c.UsageLimit,
		":start":  c.StartDate,
		":expiry": c.ExpiryDate,
		":now":    c.UpdatedAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal update")
	}
	return &types.Update{
		TableName: aws.String(r.table),
		Key:       key(couponPK(c.ID), metaSK),
		UpdateExpression: aws.String("SET code = :code, #type = :type, #value = :value, min_subtotal = :min, " +
			"usage_limit = :limit, start_date = :start, expiry_date = :expiry, updated_at = :now"),
		ConditionExpression:       aws.String("attribute_exists(pk)"),
		ExpressionAttributeNames:  map[string]string{"#type": "type", "#value": "value"},
		ExpressionAttributeValues: values,
	}, nil
}

func (r *DynamoCouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	current, err := r.getMeta(ctx, c.ID)
	if err != nil {
		return err
	}
	update, err := r.definitionUpdate(c)
	if err != nil {
		return err
	}
	items := []types.TransactWriteItem{{Update: update}}
	if current.Code != c.Code {
		claim, err := r.put(dynamoLedger{PK: codePK(c.Code), SK: metaSK, CouponID: c.ID}, "attribute_not_exists(pk)")
		if err != nil {
			return err
		}
		items = append(items, claim, types.TransactWriteItem{Delete: &types.Delete{
			TableName:           aws.String(r.table),
			Key:                 key(codePK(current.Code), metaSK),
			ConditionExpression: aws.String("coupon_id = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":id": &types.AttributeValueMemberS{Value: c.ID},
			},
		}})
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	failed, cancelled := conditionFailed(err)
	switch {
	case cancelled && failed[0]:
		return coupon.ErrNotFound
	case cancelled && failed[1]:
		return coupon.ErrCodeTaken
	case err != nil:
		return errors.Wrap(err, "update coupon")
	}
	return nil
}

// Delete removes the coupon with its code claim, guards and redemption
// markers.
func (r *DynamoCouponRepository) Delete(ctx context.Context, id string) error {
	current, err := r.getMeta(ctx, id)
	if err != nil {
		return err
	}
	ledger, err := r.partition(ctx, id)
	if err != nil {
		return err
	}
	keys := [][2]string{{codePK(current.Code), metaSK}}
	for _, l := range ledger {
		keys = append(keys, [2]string{l.PK, l.SK})
		if strings.HasPrefix(l.SK, "ORDER#") {
			keys = append(keys, [2]string{redemptionPK(l.OrderID), metaSK})
		}
	}
	keys = append(keys, [2]string{couponPK(id), metaSK})

	// TransactWriteItems takes at most 100 items; the meta item goes last so
	// a partial failure leaves the coupon visible and Delete retryable.
	const batch = 100
	for start := 0; start < len(keys); start += batch {
		items := make([]types.TransactWriteItem, 0, batch)
		for _, k := range keys[start:min(start+batch, len(keys))] {
			items = append(items, types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(r.table),
				Key:       key(k[0], k[1]),
			}})
		}
		if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
			return errors.Wrap(err, "delete coupon")
		}
	}
	return nil
}

func (r *DynamoCouponRepository) getMeta(ctx context.Context, id string) (*dynamoCoupon, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            key(couponPK(id), metaSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	if out.Item == nil {
		return nil, coupon.ErrNotFound
	}
	var d dynamoCoupon
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, errors.Wrap(err, "unmarshal coupon")
	}
	return &d, nil
}

// partition returns every non-meta item under the coupon.
func (r *DynamoCouponRepository) partition(ctx context.Context, id string) ([]dynamoLedger, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		FilterExpression:       aws.String("sk <> :meta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: couponPK(id)},
			":meta": &types.AttributeValueMemberS{Value: metaSK},
		},
		ConsistentRead: aws.Bool(true),
	})
	var out []dynamoLedger
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "query coupon ledger")
		}
		var items []dynamoLedger
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, errors.Wrap(err, "unmarshal coupon ledger")
		}
		out = append(out, items...)
	}
	return out, nil
}

// withUsage fills UsersUsed and EmailsUsed from the guard items, oldest
// first.
func (r *DynamoCouponRepository) withUsage(ctx context.Context, d *dynamoCoupon) (*coupon.Coupon, error) {
	c, err := d.coupon()
	if err != nil {
		return nil, err
	}
	ledger, err := r.partition(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ledger, func(i, j int) bool { return ledger[i].RedeemedAt.Before(ledger[j].RedeemedAt) })
	for _, l := range ledger {
		switch {
		case strings.HasPrefix(l.SK, "USER#"):
			c.UsersUsed = append(c.UsersUsed, l.UserID)
		case strings.HasPrefix(l.SK, "EMAIL#"):
			c.EmailsUsed = append(c.EmailsUsed, l.Email)
		}
	}
	return c, nil
}

func (r *DynamoCouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	d, err := r.getMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.withUsage(ctx, d)
}

func (r *DynamoCouponRepository) codeOwner(ctx context.Context, code string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            key(codePK(code), metaSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", errors.Wrap(err, "get coupon code")
	}
	if out.Item == nil {
		return "", coupon.ErrNotFound
	}
	var claim dynamoLedger
	if err := attributevalue.UnmarshalMap(out.Item, &claim); err != nil {
		return "", errors.Wrap(err, "unmarshal coupon code")
	}
	return claim.CouponID, nil
}

func (r *DynamoCouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	id, err := r.codeOwner(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *DynamoCouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String("begins_with(pk, :prefix) AND sk = :meta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: "COUPON#"},
			":meta":   &types.AttributeValueMemberS{Value: metaSK},
		},
	})
	out := make([]coupon.Coupon, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "scan coupons")
		}
		var metas []dynamoCoupon
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &metas); err != nil {
			return nil, errors.Wrap(err, "unmarshal coupons")
		}
		for i := range metas {
			c, err := r.withUsage(ctx, &metas[i])
			if err != nil {
				return nil, err
			}
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Redeem transaction items, in order.
const (
	redeemCounter = iota
	redeemMarker
	redeemOrder
	redeemUser
	redeemEmail
)

func (r *DynamoCouponRepository) Redeem(ctx context.Context, red coupon.Redemption) error {
	couponID, err := r.codeOwner(ctx, red.Code)
	if errors.Is(err, coupon.ErrNotFound) {
		return coupon.ErrInvalidCode
	}
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{{Update: &types.Update{
		TableName:           aws.String(r.table),
		Key:                 key(couponPK(couponID), metaSK),
		UpdateExpression:    aws.String("SET used_count = used_count + :one"),
		ConditionExpression: aws.String("attribute_exists(pk) AND used_count < usage_limit"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	}}}
	entries := []dynamoLedger{
		{PK: redemptionPK(red.OrderID), SK: metaSK},
		{PK: couponPK(couponID), SK: "ORDER#" + red.OrderID},
	}
	if red.UserID != "" {
		entries = append(entries, dynamoLedger{PK: couponPK(couponID), SK: "USER#" + red.UserID})
	}
	if red.Email != "" {
		entries = append(entries, dynamoLedger{PK: couponPK(couponID), SK: "EMAIL#" + strings.ToLower(red.Email)})
	}
	for _, e := range entries {
		e.CouponID = couponID
		e.OrderID = red.OrderID
		e.UserID = red.UserID
		e.Email = red.Email
		e.RedeemedAt = red.RedeemedAt
		item, err := r.put(e, "attribute_not_exists(pk)")
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	failed, cancelled := conditionFailed(err)
	switch {
	case !cancelled && err != nil:
		return errors.Wrap(err, "redeem coupon")
	case !cancelled:
		return nil
	case failed[redeemMarker]:
		return nil
	case failed[redeemCounter]:
		return coupon.ErrExhausted
	case failed[redeemUser] || failed[redeemEmail]:
		return coupon.ErrAlreadyUsed
	}
	return errors.Wrap(err, "redeem coupon")
}

func (r *DynamoCouponRepository) Release(ctx context.Context, orderID string) error {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            key(redemptionPK(orderID), metaSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return errors.Wrap(err, "get redemption")
	}
	if out.Item == nil {
		return nil
	}
	var marker dynamoLedger
	if err := attributevalue.UnmarshalMap(out.Item, &marker); err != nil {
		return errors.Wrap(err, "unmarshal redemption")
	}

	del := func(pk, sk string) types.TransactWriteItem {
		return types.TransactWriteItem{Delete: &types.Delete{TableName: aws.String(r.table), Key: key(pk, sk)}}
	}
	pk := couponPK(marker.CouponID)
	items := []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:           aws.String(r.table),
			Key:                 key(redemptionPK(orderID), metaSK),
			ConditionExpression: aws.String("attribute_exists(pk)"),
		}},
		del(pk, "ORDER#"+orderID),
		{Update: &types.Update{
			TableName:           aws.String(r.table),
			Key:                 key(pk, metaSK),
			UpdateExpression:    aws.String("SET used_count = used_count - :one"),
			ConditionExpression: aws.String("attribute_exists(pk) AND used_count > :zero"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one":  &types.AttributeValueMemberN{Value: "1"},
				":zero": &types.AttributeValueMemberN{Value: "0"},
			},
		}},
	}
	if marker.UserID != "" {
		items = append(items, del(pk, "USER#"+marker.UserID))
	}
	if marker.Email != "" {
		items = append(items, del(pk, "EMAIL#"+strings.ToLower(marker.Email)))
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if failed, ok := conditionFailed(err); ok && (failed[0] || failed[2]) {
		// Released concurrently, or the coupon is gone.
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "release coupon")
	}
	return nil
}
