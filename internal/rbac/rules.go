package rbac

// RolePermissions is the default policy. Teachers review and grade;
// learners only touch their own attempts.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"assessment:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:flag",
		"attempt:view-own",
		"history:view-own",
	},
	RoleTeacher: {
		"assessment:create",
		"assessment:view",
		"attempt:view-all",
		"attempt:grade",
		"history:view-all",
		"stats:*",
	},
	RoleAdmin: {
		"*", // everything
	},
}
