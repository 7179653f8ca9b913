package shared

// Account administration permissions.
const (
	PermUsersView   = "view_users"
	PermUsersCreate = "create_users"
	PermUsersEdit   = "edit_users"
	PermUsersDelete = "delete_users"
)

// Catalogue and order permissions.
const (
	PermProductsFull   = "products_full"
	PermProductsView   = "products_view"
	PermInventoryFull  = "inventory_full"
	PermInventoryView  = "inventory_view"
	PermOrdersFull     = "orders_full"
	PermOrdersCustomer = "orders_customer"
	PermOrdersSupplier = "orders_supplier"
	PermSuppliersFull  = "suppliers_full"
	PermSuppliersView  = "suppliers_view"
	PermCustomersView  = "customers_view"
)

// Reporting, settings and self-service permissions.
const (
	PermReportsFull  = "reports_full"
	PermReportsView  = "reports_view"
	PermSettingsFull = "settings_full"
	PermProfileEdit  = "profile_edit"
)

// CoreScopes lists the permissions governing account administration.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersCreate,
		PermUsersEdit,
		PermUsersDelete,
	}
}
