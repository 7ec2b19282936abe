// Package notify provides NotificationSink implementations: SMTP mail through
// gomail, a zap logger for development, and a function adapter.
package notify
