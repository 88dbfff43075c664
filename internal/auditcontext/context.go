package auditcontext

import (
	"context"
	"strings"
)

type contextKey string

const (
	requestIDKey      contextKey = "audit_request_id"
	ipAddressKey      contextKey = "audit_ip_address"
	userAgentKey      contextKey = "audit_user_agent"
	actorKey          contextKey = "audit_actor"
	subscriptionIDKey contextKey = "audit_subscription_id"
	provisioningRunKey contextKey = "audit_provisioning_run_id"
)

type actor struct {
	Type string
	ID   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey)
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipAddressKey, strings.TrimSpace(ip))
}

func IPAddressFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ipAddressKey)
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey, strings.TrimSpace(userAgent))
}

func UserAgentFromContext(ctx context.Context) string {
	return stringFromContext(ctx, userAgentKey)
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actor{
		Type: strings.TrimSpace(actorType),
		ID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if v, ok := ctx.Value(actorKey).(actor); ok {
		return v.Type, v.ID
	}
	return "", ""
}

func WithSubscriptionID(ctx context.Context, subscriptionID string) context.Context {
	return context.WithValue(ctx, subscriptionIDKey, strings.TrimSpace(subscriptionID))
}

func SubscriptionIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, subscriptionIDKey)
}

func WithProvisioningRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, provisioningRunKey, strings.TrimSpace(runID))
}

func ProvisioningRunIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, provisioningRunKey)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
