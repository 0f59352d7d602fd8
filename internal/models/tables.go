package models

// AllModels lists every table in migration order
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&CourseCategory{},
		&Course{},
		&CourseModule{},
		&CourseLesson{},
		&Enrollment{},
		&LessonProgress{},
		&CourseReview{},
		&Quiz{},
		&QuizQuestion{},
		&QuizAttempt{},
		&Payment{},
		&Subscription{},
		&UserMFASecret{},
		&MFABackupCode{},
		&Certificate{},
	}
}

// TableNames lists the tables AllModels creates
func TableNames() []string {
	return []string{
		"users",
		"course_categories",
		"courses",
		"course_modules",
		"course_lessons",
		"enrollments",
		"lesson_progress",
		"course_reviews",
		"quizzes",
		"quiz_questions",
		"quiz_attempts",
		"payments",
		"subscriptions",
		"user_mfa_secrets",
		"mfa_backup_codes",
		"certificates",
	}
}
