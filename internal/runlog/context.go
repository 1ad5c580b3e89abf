package runlog

import "context"

type ctxKey int

const clientCtxKey ctxKey = 1

func WithClient(ctx context.Context, c *Client) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientCtxKey, c)
}

func ClientFromContext(ctx context.Context) *Client {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(clientCtxKey).(*Client)
	return c
}

// ReportCtx reports through the client carried by ctx, if any.
func ReportCtx(ctx context.Context, action, level string, details map[string]any) {
	_ = ClientFromContext(ctx).Report(action, level, details)
}
