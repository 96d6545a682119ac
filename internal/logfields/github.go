package logfields

import "go.uber.org/zap"

func PullRequest(val int) zap.Field {
	return zap.Int("github.pull_request", val)
}

func Issue(val int) zap.Field {
	return zap.Int("github.issue", val)
}

func Repository(val string) zap.Field {
	return zap.String("git.repository", val)
}

func RepositoryOwner(val string) zap.Field {
	return zap.String("github.repository_owner", val)
}

func MergeStateStatus(val string) zap.Field {
	return zap.String("github.merge_state_status", val)
}

func MergeMethod(val string) zap.Field {
	return zap.String("github.merge_method", val)
}

func Login(val string) zap.Field {
	return zap.String("github.login", val)
}
