package appctx

import "context"

type ctxKey string

const subjectKey ctxKey = "subject"

// WithSubject добавляет subject токена управления в контекст
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Subject извлекает subject токена управления из контекста
func Subject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok
}
