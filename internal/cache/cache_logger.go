package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern invalidates a pattern and only logs failures
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete deletes keys and only logs failures
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateCourseCache drops a course by id and slug along with every catalog page
func InvalidateCourseCache(ctx context.Context, cm *CacheManager, courseID, slug string) {
	keys := []string{fmt.Sprintf("id:%s", courseID)}
	if slug != "" {
		keys = append(keys, fmt.Sprintf("slug:%s", slug), fmt.Sprintf("content:%s", slug))
	}
	SafeDelete(ctx, cm.Course, keys...)
	SafeInvalidatePattern(ctx, cm.Catalog, "*")
	SafeInvalidatePattern(ctx, cm.Stats, "*")
}

// InvalidateUserCache drops a cached user row
func InvalidateUserCache(ctx context.Context, cm *CacheManager, userID string) {
	SafeDelete(ctx, cm.User, fmt.Sprintf("id:%s", userID))
}
