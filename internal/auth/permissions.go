package auth

// Operation is a canonical operation name. Every operation maps to a
// permission of the same id.
type Operation string

const (
	OpCreateUser           Operation = "create_user"
	OpAddCredential        Operation = "add_credential"
	OpDefineRole           Operation = "define_role"
	OpDefinePermission     Operation = "define_permission"
	OpDefineService        Operation = "define_service"
	OpAddEntitlementToRole Operation = "add_entitlement_to_role"
	OpAddEntitlementToUser Operation = "add_entitlement_to_user"
	OpViewInventory        Operation = "view_inventory"

	// Catalog collaborators gate their imports on these.
	OpImportUsers        Operation = "import_users"
	OpImportEntitlements Operation = "import_entitlements"
	OpImportProducts     Operation = "import_products"
	OpDefineCollection   Operation = "define_collection"
	OpAddToCollection    Operation = "add_content_to_collection"
	OpSearchCollection   Operation = "search_collection"
)

var operationDescriptions = []struct {
	op   Operation
	desc string
}{
	{OpCreateUser, "Create users"},
	{OpAddCredential, "Attach credentials to users"},
	{OpDefineRole, "Define roles"},
	{OpDefinePermission, "Define permissions"},
	{OpDefineService, "Define services"},
	{OpAddEntitlementToRole, "Add entitlements to roles"},
	{OpAddEntitlementToUser, "Grant entitlements to users"},
	{OpViewInventory, "View the identity and entitlement inventory"},
	{OpImportUsers, "Import users from a file"},
	{OpImportEntitlements, "Import entitlements from a file"},
	{OpImportProducts, "Import catalog products"},
	{OpDefineCollection, "Define content collections"},
	{OpAddToCollection, "Add content to collections"},
	{OpSearchCollection, "Populate collections from searches"},
}

// Operations returns every known operation in declaration order.
func Operations() []Operation {
	out := make([]Operation, 0, len(operationDescriptions))
	for _, d := range operationDescriptions {
		out = append(out, d.op)
	}
	return out
}

func (o Operation) String() string { return string(o) }

// Permission returns the permission guarding the operation.
func (o Operation) Permission() Permission {
	for _, d := range operationDescriptions {
		if d.op == o {
			return NewPermission(string(o), d.desc)
		}
	}
	return NewPermission(string(o), string(o))
}

// BuiltinPermissions returns one permission per known operation.
func BuiltinPermissions() []Permission {
	out := make([]Permission, 0, len(operationDescriptions))
	for _, d := range operationDescriptions {
		out = append(out, NewPermission(string(d.op), d.desc))
	}
	return out
}
